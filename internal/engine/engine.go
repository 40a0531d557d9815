// Package engine orchestrates persistence, the governance event log, the
// inclusion computation, and the operation ledger behind one API used by the
// CLI and the HTTP server.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"aegis/internal/conduit"
	"aegis/internal/config"
	"aegis/internal/domain"
	"aegis/internal/events"
	"aegis/internal/inclusion"
	"aegis/internal/ledger"
	"aegis/internal/repo"
	"aegis/internal/session"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Ledger ledger.Store
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Ledger: ledger.Store{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) ts() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) options() inclusion.Options {
	opts := inclusion.DefaultOptions()
	if e.Config != nil {
		if len(e.Config.Lenses.Synthesis) > 0 {
			opts.SynthesisLenses = e.Config.Lenses.Synthesis
		}
		if e.Config.Awareness.Epsilon > 0 {
			opts.AwarenessEpsilon = e.Config.Awareness.Epsilon
		}
	}
	return opts
}

// Conduit builds the tool executor bound to this engine's ledger and config.
func (e Engine) Conduit() conduit.Conduit {
	c := conduit.Conduit{
		Ledger: ledger.Store{DB: e.DB, Now: e.Now},
		Now:    e.Now,
	}
	if e.Config != nil {
		c.ReaderNames = e.Config.Conduit.Readers
		c.InlineCapBytes = e.Config.Conduit.InlineCapBytes
		c.PreviewChars = e.Config.Conduit.PreviewChars
	}
	return c
}

// RegisterArtifact creates a deliberation artifact and seeds its config.
func (e Engine) RegisterArtifact(ctx context.Context, id, title string, tags []string, highImpact, tension bool) (domain.Artifact, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Artifact{}, fmt.Errorf("artifact id required")
	}
	a := domain.Artifact{
		ID:           id,
		Title:        title,
		DomainTags:   tags,
		Status:       domain.ArtifactActive,
		IsHighImpact: highImpact,
		HasTension:   tension,
		CreatedAt:    e.ts(),
	}
	if err := e.Repo.InsertArtifact(ctx, a); err != nil {
		return domain.Artifact{}, fmt.Errorf("insert artifact: %w", err)
	}
	cfg := e.Config
	if cfg == nil {
		cfg = config.Default(id)
	}
	if err := e.Repo.UpsertArtifactConfig(ctx, id, *cfg, a.CreatedAt); err != nil {
		return domain.Artifact{}, fmt.Errorf("insert artifact config: %w", err)
	}
	return a, nil
}

func (e Engine) RegisterPeer(ctx context.Context, id, peerType, displayName string, domains []string) (domain.Peer, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Peer{}, fmt.Errorf("peer id required")
	}
	if peerType == "" {
		peerType = "human"
	}
	p := domain.Peer{
		ID:          id,
		Type:        peerType,
		DisplayName: displayName,
		Domains:     domains,
		CreatedAt:   e.ts(),
	}
	if err := e.Repo.InsertPeer(ctx, p); err != nil {
		return domain.Peer{}, fmt.Errorf("insert peer: %w", err)
	}
	return p, nil
}

func (e Engine) RegisterLens(ctx context.Context, id string, domains []string, autoReview bool, description string) (domain.Lens, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Lens{}, fmt.Errorf("lens id required")
	}
	l := domain.Lens{
		ID:          id,
		Domains:     domains,
		AutoReview:  autoReview,
		Description: description,
		CreatedAt:   e.ts(),
	}
	if err := e.Repo.InsertLens(ctx, l); err != nil {
		return domain.Lens{}, fmt.Errorf("insert lens: %w", err)
	}
	return l, nil
}

// AppendGovernanceEvent records one event and stamps the awareness value
// before and after, computed against the full log. The stamps are a
// convenience for audit readers; recomputation from the log stays
// authoritative.
func (e Engine) AppendGovernanceEvent(ctx context.Context, ev domain.GovernanceEvent) (domain.GovernanceEvent, error) {
	artifact, peers, lenses, log, err := e.loadInclusionInputs(ctx, ev.ArtifactID)
	if err != nil {
		return domain.GovernanceEvent{}, err
	}
	if artifact.Status == domain.ArtifactLocked {
		return domain.GovernanceEvent{}, fmt.Errorf("artifact %s is locked; its log is closed", artifact.ID)
	}
	opts := e.options()
	before := inclusion.Compute(artifact, peers, lenses, log, opts).AwarenessPercent
	after := inclusion.Compute(artifact, peers, lenses, append(append([]domain.GovernanceEvent{}, log...), ev), opts).AwarenessPercent
	ev.AwarenessBefore = &before
	ev.AwarenessAfter = &after
	// Acknowledgement lives in the artifact's own log; the peer record is
	// never mutated, so an ack on one artifact cannot leak into another.
	return e.Events.AppendDirect(ctx, ev)
}

func (e Engine) loadInclusionInputs(ctx context.Context, artifactID string) (domain.Artifact, []domain.Peer, []domain.Lens, []domain.GovernanceEvent, error) {
	artifact, err := e.Repo.GetArtifact(ctx, artifactID)
	if err != nil {
		return domain.Artifact{}, nil, nil, nil, fmt.Errorf("artifact %s: %w", artifactID, err)
	}
	peers, err := e.Repo.ListPeers(ctx)
	if err != nil {
		return domain.Artifact{}, nil, nil, nil, err
	}
	lenses, err := e.Repo.ListLenses(ctx)
	if err != nil {
		return domain.Artifact{}, nil, nil, nil, err
	}
	log, err := e.Events.ListForArtifact(ctx, artifactID)
	if err != nil {
		return domain.Artifact{}, nil, nil, nil, err
	}
	return artifact, peers, lenses, log, nil
}

// InclusionFor recomputes the inclusion snapshot for an artifact.
func (e Engine) InclusionFor(ctx context.Context, artifactID string) (domain.InclusionState, error) {
	artifact, peers, lenses, log, err := e.loadInclusionInputs(ctx, artifactID)
	if err != nil {
		return domain.InclusionState{}, err
	}
	return inclusion.Compute(artifact, peers, lenses, log, e.options()), nil
}

// LockError carries the reasons a lock was refused.
type LockError struct {
	ArtifactID string
	Reasons    []string
}

func (e LockError) Error() string {
	return fmt.Sprintf("artifact %s is not lock-eligible: %s", e.ArtifactID, strings.Join(e.Reasons, "; "))
}

// LockArtifact locks the artifact when inclusion allows it: status moves to
// locked, a flat consideration ledger is persisted, and a lock_request event
// closes the log. Refusals return a LockError listing the blocking reasons.
func (e Engine) LockArtifact(ctx context.Context, artifactID, actorID string) (domain.PeerConsiderationLedger, error) {
	artifact, peers, lenses, log, err := e.loadInclusionInputs(ctx, artifactID)
	if err != nil {
		return domain.PeerConsiderationLedger{}, err
	}
	if artifact.Status == domain.ArtifactLocked {
		return domain.PeerConsiderationLedger{}, fmt.Errorf("artifact %s is already locked", artifactID)
	}
	ok, state := inclusion.CanLock(artifact, peers, lenses, log, e.options())
	if !ok {
		return domain.PeerConsiderationLedger{}, LockError{ArtifactID: artifactID, Reasons: state.Reasons}
	}

	ts := e.ts()
	snap := inclusion.BuildLedgerSnapshot(artifactID, state, ts)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.PeerConsiderationLedger{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateArtifactStatus(ctx, tx, artifactID, domain.ArtifactLocked); err != nil {
		return domain.PeerConsiderationLedger{}, fmt.Errorf("lock artifact: %w", err)
	}
	if err := e.Repo.InsertLedgerSnapshot(ctx, tx, "SNAP-"+uuid.NewString(), snap); err != nil {
		return domain.PeerConsiderationLedger{}, err
	}
	if _, err := e.Events.Append(ctx, tx, domain.GovernanceEvent{
		ArtifactID: artifactID,
		Type:       domain.EventLockRequest,
		PeerID:     actorID,
		TS:         ts,
	}); err != nil {
		return domain.PeerConsiderationLedger{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.PeerConsiderationLedger{}, err
	}
	return snap, nil
}

// ProposeOperation opens a governed read-only tool-call lineage.
func (e Engine) ProposeOperation(ctx context.Context, p conduit.ProposeParams) (domain.GovernedOperation, error) {
	if _, err := e.Repo.GetArtifact(ctx, p.ArtifactID); err != nil {
		return domain.GovernedOperation{}, fmt.Errorf("artifact %s: %w", p.ArtifactID, err)
	}
	return e.Conduit().ProposeReadOnlyToolCall(ctx, p)
}

func (e Engine) AcceptOperation(ctx context.Context, opID, approvedBy string, params map[string]any) (domain.GovernedOperation, error) {
	return e.Conduit().AcceptRequest(ctx, opID, approvedBy, params)
}

func (e Engine) RejectOperation(ctx context.Context, opID, rejectedBy string) (domain.GovernedOperation, error) {
	return e.Conduit().Reject(ctx, opID, rejectedBy)
}

func (e Engine) ExecuteOperation(ctx context.Context, opID string, spec conduit.ReadSpec) (domain.OperationResult, error) {
	return e.Conduit().ExecuteGovernedReadOnlyTool(ctx, opID, spec)
}

// OperationHeads returns the current state of every lineage for an artifact.
func (e Engine) OperationHeads(ctx context.Context, artifactID string) ([]domain.GovernedOperation, error) {
	ops, err := e.Ledger.LoadOps(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	return ledger.DeriveCurrent(ops), nil
}

func (e Engine) CreateSession(ctx context.Context, artifactID string) (domain.Session, error) {
	if _, err := e.Repo.GetArtifact(ctx, artifactID); err != nil {
		return domain.Session{}, fmt.Errorf("artifact %s: %w", artifactID, err)
	}
	s := session.Create(artifactID, e.now())
	if err := e.Repo.UpsertSession(ctx, s); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

func (e Engine) StartSession(ctx context.Context, sessionID string) (domain.Session, error) {
	s, err := e.Repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	siblings, err := e.Repo.ListSessions(ctx, s.ArtifactID)
	if err != nil {
		return domain.Session{}, err
	}
	s, err = session.Start(s, siblings, e.now())
	if err != nil {
		return domain.Session{}, err
	}
	if err := e.Repo.UpsertSession(ctx, s); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

func (e Engine) CloseSession(ctx context.Context, sessionID string) (domain.Session, error) {
	s, err := e.Repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	s = session.Close(s, e.now())
	if err := e.Repo.UpsertSession(ctx, s); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

func (e Engine) JoinSession(ctx context.Context, sessionID, peerID string) (domain.Session, error) {
	s, err := e.Repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if _, err := e.Repo.GetPeer(ctx, peerID); err != nil {
		return domain.Session{}, fmt.Errorf("peer %s: %w", peerID, err)
	}
	s = session.Join(s, peerID)
	s = session.Touch(s, e.now())
	if err := e.Repo.UpsertSession(ctx, s); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

func (e Engine) TouchSession(ctx context.Context, sessionID string) (domain.Session, error) {
	s, err := e.Repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	s = session.Touch(s, e.now())
	if err := e.Repo.UpsertSession(ctx, s); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// SweepAbandoned marks inactive sessions abandoned and returns how many
// changed. Callers run it periodically or before reads.
func (e Engine) SweepAbandoned(ctx context.Context) (int, error) {
	sessions, err := e.Repo.ListSessions(ctx, "")
	if err != nil {
		return 0, err
	}
	window := 30 * time.Minute
	if e.Config != nil && e.Config.Sessions.InactivityMinutes > 0 {
		window = time.Duration(e.Config.Sessions.InactivityMinutes) * time.Minute
	}
	updated, changed := session.ApplyAbandonment(sessions, window, e.now())
	if !changed {
		return 0, nil
	}
	n := 0
	for i := range updated {
		if updated[i].Status == domain.SessionAbandoned && sessions[i].Status != domain.SessionAbandoned {
			if err := e.Repo.UpsertSession(ctx, updated[i]); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

// PostBoardMessage publishes a peer message through the governed operation
// path: the post is proposed, auto-accepted on behalf of the peer, recorded
// as executed, and only then inserted on the board. The ledger keeps the
// full trail even for this write-light path.
func (e Engine) PostBoardMessage(ctx context.Context, artifactID, peerID, body string) (domain.BoardMessage, error) {
	if strings.TrimSpace(body) == "" {
		return domain.BoardMessage{}, fmt.Errorf("message body required")
	}
	if _, err := e.Repo.GetPeer(ctx, peerID); err != nil {
		return domain.BoardMessage{}, fmt.Errorf("peer %s: %w", peerID, err)
	}
	artifact, err := e.Repo.GetArtifact(ctx, artifactID)
	if err != nil {
		return domain.BoardMessage{}, fmt.Errorf("artifact %s: %w", artifactID, err)
	}
	if artifact.Status == domain.ArtifactLocked {
		return domain.BoardMessage{}, fmt.Errorf("artifact %s is locked", artifactID)
	}

	ts := e.ts()
	op := domain.GovernedOperation{
		ID:         ledger.NewOperationID(),
		ArtifactID: artifactID,
		CreatedAt:  ts,
		Status:     domain.OpProposed,
		Mode:       domain.ModeReadOnly,
		Proposal: domain.OperationProposal{
			ToolID:   "board.post",
			ToolName: "board.post",
			Intent:   "post deliberation board message",
		},
		Lineage: domain.OperationLineage{PeerID: peerID},
	}
	op.LineageID = op.ID
	if err := e.Ledger.Append(ctx, op); err != nil {
		return domain.BoardMessage{}, err
	}
	if _, err := e.Ledger.UpdateStatus(ctx, op.ID, ledger.StatusPatch{
		Status:  domain.OpRequested,
		Request: &domain.OperationRequest{RequestedAt: ts, Accepted: true, ApprovedBy: peerID},
	}); err != nil {
		return domain.BoardMessage{}, err
	}
	if _, err := e.Ledger.UpdateStatus(ctx, op.ID, ledger.StatusPatch{
		Status: domain.OpExecuted,
		Result: &domain.OperationResult{CompletedAt: ts, Outcome: "success"},
	}); err != nil {
		return domain.BoardMessage{}, err
	}

	m := domain.BoardMessage{
		ID:         "MSG-" + uuid.NewString(),
		ArtifactID: artifactID,
		PeerID:     peerID,
		OpID:       op.ID,
		Body:       body,
		CreatedAt:  ts,
	}
	if err := e.Repo.InsertBoardMessage(ctx, m); err != nil {
		return domain.BoardMessage{}, err
	}
	return m, nil
}
