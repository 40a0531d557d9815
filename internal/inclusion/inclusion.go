// Package inclusion computes lock eligibility for an artifact from its peer
// roster, lens roster, and governance event log. Every function here is a
// deterministic computation over its explicit inputs; callers recompute on
// demand, including hypothetical what-if projections before appending an
// event.
package inclusion

import (
	"fmt"
	"strings"

	"aegis/internal/domain"
	"aegis/internal/sentinel"
)

// Options carries the policy knobs the engine reads from config.
type Options struct {
	// SynthesisLenses are always-allowed system lenses, required on
	// high-impact or tension artifacts.
	SynthesisLenses []string
	// AwarenessEpsilon absorbs floating rounding in the awareness gate.
	AwarenessEpsilon float64
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{
		SynthesisLenses:  []string{"Rational Synthesis", "Affective Synthesis"},
		AwarenessEpsilon: 0.001,
	}
}

// IntersectionDepth is |peer.domains ∩ artifact.domainTags| / |artifact.domainTags|,
// in [0,1]. Zero when the artifact carries no domain tags.
func IntersectionDepth(peer domain.Peer, artifact domain.Artifact) float64 {
	if len(artifact.DomainTags) == 0 {
		return 0
	}
	tags := map[string]bool{}
	for _, t := range artifact.DomainTags {
		tags[t] = true
	}
	shared := 0
	for _, d := range peer.Domains {
		if tags[d] {
			shared++
		}
	}
	return float64(shared) / float64(len(artifact.DomainTags))
}

func lensIntersects(lens domain.Lens, artifact domain.Artifact) bool {
	tags := map[string]bool{}
	for _, t := range artifact.DomainTags {
		tags[t] = true
	}
	for _, d := range lens.Domains {
		if tags[d] {
			return true
		}
	}
	return false
}

func isDeferral(t domain.EventType) bool {
	return t == domain.EventDeferLens || t == domain.LegacyLensDeferral
}

// Compute derives the full inclusion snapshot. Deterministic given identical
// inputs; events must be supplied in insertion order because the most recent
// deferral for a lens wins.
func Compute(artifact domain.Artifact, peers []domain.Peer, lenses []domain.Lens, events []domain.GovernanceEvent, opts Options) domain.InclusionState {
	state := domain.InclusionState{
		AwarenessPercent: 1,
	}

	// Peer intersection and awareness.
	depths := map[string]float64{}
	var intersecting []domain.Peer
	for _, p := range peers {
		d := IntersectionDepth(p, artifact)
		if d > 0 {
			depths[p.ID] = d
			intersecting = append(intersecting, p)
			state.IntersectingPeers = append(state.IntersectingPeers, p.ID)
		}
	}

	acked := map[string]bool{}
	for _, ev := range events {
		if ev.Type == domain.EventAwarenessAck && ev.PeerID != "" {
			acked[ev.PeerID] = true
		}
	}
	for _, p := range intersecting {
		if p.Acknowledged || acked[p.ID] {
			state.AcknowledgedPeers = append(state.AcknowledgedPeers, p.ID)
		}
	}
	if len(intersecting) > 0 {
		state.AwarenessPercent = float64(len(state.AcknowledgedPeers)) / float64(len(intersecting))
	}
	state.AwarenessSatisfied = state.AwarenessPercent >= 1-opts.AwarenessEpsilon

	// Lens intersection and representation.
	intersectingLensIDs := map[string]bool{}
	for _, l := range lenses {
		if lensIntersects(l, artifact) {
			intersectingLensIDs[l.ID] = true
			state.IntersectingLenses = append(state.IntersectingLenses, l.ID)
		}
	}
	synthesis := map[string]bool{}
	for _, id := range opts.SynthesisLenses {
		synthesis[id] = true
	}

	represented := map[string]bool{}
	for _, ev := range events {
		if ev.LensID == "" {
			continue
		}
		if ev.Type != domain.EventContribution && ev.Type != domain.EventProxyReview {
			continue
		}
		if intersectingLensIDs[ev.LensID] || synthesis[ev.LensID] {
			if !represented[ev.LensID] {
				represented[ev.LensID] = true
				state.RepresentedLenses = append(state.RepresentedLenses, ev.LensID)
			}
		}
	}

	// Most recent deferral with non-empty rationale wins per lens. Pattern
	// matching runs on raw text; the emptiness check on trimmed text.
	deferralRationale := map[string]string{}
	for _, ev := range events {
		if !isDeferral(ev.Type) || ev.LensID == "" {
			continue
		}
		if !intersectingLensIDs[ev.LensID] {
			continue
		}
		if strings.TrimSpace(ev.Rationale) == "" {
			continue
		}
		deferralRationale[ev.LensID] = ev.Rationale
	}
	for _, id := range state.IntersectingLenses {
		if r, ok := deferralRationale[id]; ok {
			state.DeferredLenses = append(state.DeferredLenses, domain.DeferredLens{LensID: id, Rationale: r})
		}
	}

	deferred := map[string]bool{}
	for _, d := range state.DeferredLenses {
		deferred[d.LensID] = true
	}
	for _, id := range state.IntersectingLenses {
		if !represented[id] && !deferred[id] {
			state.MissingLenses = append(state.MissingLenses, id)
		}
	}

	// Synthesis gate: high-impact or tension artifacts need both synthesis
	// lenses represented.
	state.SynthesisSatisfied = true
	var missingSynthesis []string
	if artifact.IsHighImpact || artifact.HasTension {
		for _, id := range opts.SynthesisLenses {
			if !represented[id] {
				missingSynthesis = append(missingSynthesis, id)
			}
		}
		state.SynthesisSatisfied = len(missingSynthesis) == 0
	}

	state.DetectedShadowAffects = sentinel.DetectShadowAffects(events)

	state.LockAvailable = state.AwarenessSatisfied &&
		len(state.MissingLenses) == 0 &&
		state.SynthesisSatisfied &&
		len(state.DetectedShadowAffects) == 0

	state.Reasons = buildReasons(peers, intersecting, depths, state, missingSynthesis)
	return state
}

// buildReasons assembles display-priority-ordered blockers: named primary
// experts first, then partial-depth counts, missing lenses, missing synthesis
// lenses, and shadow affects.
func buildReasons(peers []domain.Peer, intersecting []domain.Peer, depths map[string]float64, state domain.InclusionState, missingSynthesis []string) []string {
	acked := map[string]bool{}
	for _, id := range state.AcknowledgedPeers {
		acked[id] = true
	}
	var reasons []string
	partial := 0
	for _, p := range intersecting {
		if acked[p.ID] {
			continue
		}
		if depths[p.ID] >= 1 {
			name := p.DisplayName
			if name == "" {
				name = p.ID
			}
			reasons = append(reasons, fmt.Sprintf("Awaiting acknowledgement from %s", name))
		} else {
			partial++
		}
	}
	if partial > 0 && !state.AwarenessSatisfied {
		reasons = append(reasons, fmt.Sprintf("%d partially affected peer(s) have not acknowledged", partial))
	}
	for _, id := range state.MissingLenses {
		reasons = append(reasons, fmt.Sprintf("Lens not represented: %s", id))
	}
	for _, id := range missingSynthesis {
		reasons = append(reasons, fmt.Sprintf("Synthesis lens required: %s", id))
	}
	reasons = append(reasons, state.DetectedShadowAffects...)
	return reasons
}

// CanLock is a thin wrapper over Compute.
func CanLock(artifact domain.Artifact, peers []domain.Peer, lenses []domain.Lens, events []domain.GovernanceEvent, opts Options) (bool, domain.InclusionState) {
	state := Compute(artifact, peers, lenses, events, opts)
	return state.LockAvailable, state
}

// BuildLedgerSnapshot produces the permanent audit record persisted when a
// lock succeeds. MissingLenses is always empty because the caller only
// snapshots eligible states.
func BuildLedgerSnapshot(artifactID string, state domain.InclusionState, ts string) domain.PeerConsiderationLedger {
	return domain.PeerConsiderationLedger{
		ArtifactID:            artifactID,
		NotifiedPeers:         state.IntersectingPeers,
		AcknowledgedPeers:     state.AcknowledgedPeers,
		RepresentedLenses:     state.RepresentedLenses,
		DeferredLenses:        state.DeferredLenses,
		MissingLenses:         []string{},
		Timestamp:             ts,
		AwarenessPercent:      state.AwarenessPercent,
		DetectedShadowAffects: state.DetectedShadowAffects,
	}
}
