package domain

// Artifact is the object under deliberation. Created and owned by callers;
// the engine only reads it.
type Artifact struct {
	ID           string   `json:"id"`
	Title        string   `json:"title,omitempty"`
	DomainTags   []string `json:"domain_tags"`
	Status       string   `json:"status" enum:"draft,active,ready,locked,superseded"`
	IsHighImpact bool     `json:"is_high_impact"`
	HasTension   bool     `json:"has_tension"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
}

const (
	ArtifactDraft      = "draft"
	ArtifactActive     = "active"
	ArtifactReady      = "ready"
	ArtifactLocked     = "locked"
	ArtifactSuperseded = "superseded"
)

type Peer struct {
	ID           string   `json:"id"`
	Type         string   `json:"type" enum:"human,ai"`
	DisplayName  string   `json:"display_name,omitempty"`
	Domains      []string `json:"domains"`
	Acknowledged bool     `json:"acknowledged"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
}

type Lens struct {
	ID          string   `json:"id"`
	Domains     []string `json:"domains"`
	AutoReview  bool     `json:"auto_review"`
	Description string   `json:"description,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
}

// EventType enumerates the governance event variants. The legacy spelling
// lens_deferral_with_rationale is accepted on ingest and normalized to
// EventDeferLens when read back.
type EventType string

const (
	EventAwarenessAck EventType = "awareness_ack"
	EventContribution EventType = "contribution"
	EventProxyReview  EventType = "proxy_review"
	EventDeferLens    EventType = "defer_lens"
	EventLockRequest  EventType = "lock_request"

	LegacyLensDeferral EventType = "lens_deferral_with_rationale"
)

// NormalizeEventType maps the legacy deferral alias onto the canonical type.
func NormalizeEventType(t EventType) EventType {
	if t == LegacyLensDeferral {
		return EventDeferLens
	}
	return t
}

// ValidEventType reports whether t is an accepted event type, legacy alias included.
func ValidEventType(t EventType) bool {
	switch t {
	case EventAwarenessAck, EventContribution, EventProxyReview, EventDeferLens, EventLockRequest, LegacyLensDeferral:
		return true
	}
	return false
}

// GovernanceEvent is an immutable, timestamped fact appended to a per-artifact
// log. Seq is the storage insertion order; the engine iterates by Seq, not TS,
// to tolerate clock skew between rapid successive events.
type GovernanceEvent struct {
	Seq             int64     `json:"seq"`
	EventID         string    `json:"event_id"`
	ArtifactID      string    `json:"artifact_id"`
	Type            EventType `json:"type"`
	PeerID          string    `json:"peer_id,omitempty"`
	LensID          string    `json:"lens_id,omitempty"`
	Rationale       string    `json:"rationale,omitempty"`
	AwarenessBefore *float64  `json:"awareness_before,omitempty"`
	AwarenessAfter  *float64  `json:"awareness_after,omitempty"`
	TS              string    `json:"ts" format:"date-time"`
}

const (
	OpProposed  = "proposed"
	OpRequested = "requested"
	OpExecuted  = "executed"
	OpRejected  = "rejected"
	OpFailed    = "failed"
)

const (
	ModeReadOnly = "read_only"
	ModeWrite    = "write"
	ModeAdmin    = "admin"
)

type OperationProposal struct {
	ToolID      string   `json:"tool_id"`
	ToolName    string   `json:"tool_name"`
	Intent      string   `json:"intent,omitempty"`
	Scope       []string `json:"scope,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
	Rationale   string   `json:"rationale,omitempty"`
}

type OperationRequest struct {
	RequestedAt string         `json:"requested_at" format:"date-time"`
	Accepted    bool           `json:"accepted"`
	ApprovedBy  string         `json:"approved_by,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type OperationResult struct {
	CompletedAt    string         `json:"completed_at" format:"date-time"`
	Outcome        string         `json:"outcome" enum:"success,failure"`
	Data           map[string]any `json:"data,omitempty"`
	Error          string         `json:"error,omitempty"`
	AppendOnlyHash string         `json:"append_only_hash,omitempty"`
}

type OperationLineage struct {
	SessionID string `json:"session_id,omitempty"`
	PeerID    string `json:"peer_id,omitempty"`
}

// GovernedOperation records a proposed or executed tool call. Records are
// never updated in place; a status change appends a new record whose
// PreviousID references the logical predecessor and whose LineageID was
// stamped at proposal time and stays constant across revisions.
type GovernedOperation struct {
	Seq        int64             `json:"seq"`
	ID         string            `json:"id"`
	LineageID  string            `json:"lineage_id"`
	PreviousID *string           `json:"previous_id,omitempty"`
	ArtifactID string            `json:"artifact_id"`
	CreatedAt  string            `json:"created_at" format:"date-time"`
	Status     string            `json:"status" enum:"proposed,requested,executed,rejected,failed"`
	Mode       string            `json:"mode" enum:"read_only,write,admin"`
	Proposal   OperationProposal `json:"proposal"`
	Request    *OperationRequest `json:"request,omitempty"`
	Result     *OperationResult  `json:"result,omitempty"`
	Lineage    OperationLineage  `json:"lineage"`
}

const (
	SessionDraft     = "draft"
	SessionActive    = "active"
	SessionClosed    = "closed"
	SessionAbandoned = "abandoned"
)

type Session struct {
	ID                string   `json:"id"`
	ArtifactID        string   `json:"artifact_id"`
	Status            string   `json:"status" enum:"draft,active,closed,abandoned"`
	StartedAt         *string  `json:"started_at,omitempty" format:"date-time"`
	LastActiveAt      *string  `json:"last_active_at,omitempty" format:"date-time"`
	ClosedAt          *string  `json:"closed_at,omitempty" format:"date-time"`
	Participants      []string `json:"participants"`
	AbandonmentReason string   `json:"abandonment_reason,omitempty"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
}

// DeferredLens pairs a lens with the rationale of its most recent non-empty
// deferral.
type DeferredLens struct {
	LensID    string `json:"lens_id"`
	Rationale string `json:"rationale"`
}

// InclusionState is a derived snapshot recomputed on demand; it is never
// persisted. Reasons are ordered for display priority; the order does not
// affect LockAvailable.
type InclusionState struct {
	IntersectingPeers     []string       `json:"intersecting_peers"`
	IntersectingLenses    []string       `json:"intersecting_lenses"`
	AcknowledgedPeers     []string       `json:"acknowledged_peers"`
	AwarenessPercent      float64        `json:"awareness_percent"`
	RepresentedLenses     []string       `json:"represented_lenses"`
	DeferredLenses        []DeferredLens `json:"deferred_lenses"`
	MissingLenses         []string       `json:"missing_lenses"`
	AwarenessSatisfied    bool           `json:"awareness_satisfied"`
	SynthesisSatisfied    bool           `json:"synthesis_satisfied"`
	LockAvailable         bool           `json:"lock_available"`
	Reasons               []string       `json:"reasons"`
	DetectedShadowAffects []string       `json:"detected_shadow_affects"`
}

// PeerConsiderationLedger is the flat audit record persisted when a lock
// succeeds.
type PeerConsiderationLedger struct {
	ArtifactID            string         `json:"artifact_id"`
	NotifiedPeers         []string       `json:"notified_peers"`
	AcknowledgedPeers     []string       `json:"acknowledged_peers"`
	RepresentedLenses     []string       `json:"represented_lenses"`
	DeferredLenses        []DeferredLens `json:"deferred_lenses"`
	MissingLenses         []string       `json:"missing_lenses"`
	Timestamp             string         `json:"timestamp" format:"date-time"`
	AwarenessPercent      float64        `json:"awareness_percent"`
	DetectedShadowAffects []string       `json:"detected_shadow_affects"`
}

type BoardMessage struct {
	ID         string `json:"id"`
	ArtifactID string `json:"artifact_id"`
	PeerID     string `json:"peer_id"`
	OpID       string `json:"op_id"`
	Body       string `json:"body"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
