package inclusion_test

import (
	"reflect"
	"testing"

	"aegis/internal/domain"
	"aegis/internal/inclusion"
)

var opts = inclusion.DefaultOptions()

func artifact(tags ...string) domain.Artifact {
	return domain.Artifact{ID: "art-1", DomainTags: tags, Status: domain.ArtifactActive}
}

func peer(id string, domains ...string) domain.Peer {
	return domain.Peer{ID: id, Type: "human", Domains: domains}
}

func lens(id string, domains ...string) domain.Lens {
	return domain.Lens{ID: id, Domains: domains}
}

func ack(peerID string) domain.GovernanceEvent {
	return domain.GovernanceEvent{Type: domain.EventAwarenessAck, ArtifactID: "art-1", PeerID: peerID}
}

func contribution(peerID, lensID string) domain.GovernanceEvent {
	return domain.GovernanceEvent{Type: domain.EventContribution, ArtifactID: "art-1", PeerID: peerID, LensID: lensID}
}

func deferLens(lensID, rationale string) domain.GovernanceEvent {
	return domain.GovernanceEvent{Type: domain.EventDeferLens, ArtifactID: "art-1", LensID: lensID, Rationale: rationale}
}

func TestIdempotentRecompute(t *testing.T) {
	a := artifact("security", "ethics")
	peers := []domain.Peer{peer("p1", "security"), peer("p2", "ethics", "security")}
	lenses := []domain.Lens{lens("Security Review", "security")}
	events := []domain.GovernanceEvent{ack("p1"), contribution("p1", "Security Review")}
	first := inclusion.Compute(a, peers, lenses, events, opts)
	second := inclusion.Compute(a, peers, lenses, events, opts)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("recompute not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestVacuousAwareness(t *testing.T) {
	a := artifact("security")
	peers := []domain.Peer{peer("p1", "finance"), peer("p2", "legal")}
	state := inclusion.Compute(a, peers, nil, nil, opts)
	if !state.AwarenessSatisfied {
		t.Fatalf("expected vacuous awareness satisfaction")
	}
	if state.AwarenessPercent != 1 {
		t.Fatalf("expected awareness 1.0, got %v", state.AwarenessPercent)
	}
	if len(state.IntersectingPeers) != 0 {
		t.Fatalf("expected no intersecting peers")
	}
}

func TestIntersectionDepth(t *testing.T) {
	a := artifact("security", "ethics")
	if d := inclusion.IntersectionDepth(peer("p", "security"), a); d != 0.5 {
		t.Fatalf("expected depth 0.5, got %v", d)
	}
	if d := inclusion.IntersectionDepth(peer("p", "security", "ethics"), a); d != 1 {
		t.Fatalf("expected depth 1, got %v", d)
	}
	if d := inclusion.IntersectionDepth(peer("p", "finance"), a); d != 0 {
		t.Fatalf("expected depth 0, got %v", d)
	}
	if d := inclusion.IntersectionDepth(peer("p", "security"), artifact()); d != 0 {
		t.Fatalf("untagged artifact should yield depth 0, got %v", d)
	}
}

func TestAwarenessGate(t *testing.T) {
	a := artifact("security")
	peers := []domain.Peer{peer("p1", "security"), peer("p2", "security")}
	state := inclusion.Compute(a, peers, nil, []domain.GovernanceEvent{ack("p1")}, opts)
	if state.AwarenessSatisfied {
		t.Fatalf("expected awareness unsatisfied at 50%%")
	}
	if state.AwarenessPercent != 0.5 {
		t.Fatalf("expected 0.5, got %v", state.AwarenessPercent)
	}
	state = inclusion.Compute(a, peers, nil, []domain.GovernanceEvent{ack("p1"), ack("p2")}, opts)
	if !state.AwarenessSatisfied || !state.LockAvailable {
		t.Fatalf("expected lock after full acknowledgement: %+v", state.Reasons)
	}
}

func TestPreAcknowledgedFlagCounts(t *testing.T) {
	a := artifact("security")
	p := peer("p1", "security")
	p.Acknowledged = true
	state := inclusion.Compute(a, []domain.Peer{p}, nil, nil, opts)
	if !state.AwarenessSatisfied {
		t.Fatalf("pre-acknowledged flag should satisfy awareness")
	}
	if len(state.AcknowledgedPeers) != 1 {
		t.Fatalf("expected one acknowledged peer")
	}
}

func TestWhitespaceDeferralDoesNotCount(t *testing.T) {
	a := artifact("security")
	lenses := []domain.Lens{lens("Security Review", "security")}
	state := inclusion.Compute(a, nil, lenses, []domain.GovernanceEvent{deferLens("Security Review", " ")}, opts)
	if len(state.MissingLenses) != 1 || state.MissingLenses[0] != "Security Review" {
		t.Fatalf("whitespace-only deferral must not satisfy the lens: %+v", state)
	}
	if state.LockAvailable {
		t.Fatalf("expected lock unavailable")
	}
}

func TestValidDeferralMovesLens(t *testing.T) {
	a := artifact("security")
	lenses := []domain.Lens{lens("Security Review", "security")}
	state := inclusion.Compute(a, nil, lenses, []domain.GovernanceEvent{deferLens("Security Review", "Deferred for later review")}, opts)
	if len(state.MissingLenses) != 0 {
		t.Fatalf("expected no missing lenses: %+v", state.MissingLenses)
	}
	if len(state.DeferredLenses) != 1 || state.DeferredLenses[0].Rationale != "Deferred for later review" {
		t.Fatalf("unexpected deferred lenses: %+v", state.DeferredLenses)
	}
	if !state.LockAvailable {
		t.Fatalf("expected lock available: %+v", state.Reasons)
	}
}

func TestMostRecentDeferralWins(t *testing.T) {
	a := artifact("security")
	lenses := []domain.Lens{lens("Security Review", "security")}
	events := []domain.GovernanceEvent{
		deferLens("Security Review", "first rationale"),
		deferLens("Security Review", "second rationale"),
		deferLens("Security Review", "   "),
	}
	state := inclusion.Compute(a, nil, lenses, events, opts)
	if len(state.DeferredLenses) != 1 {
		t.Fatalf("expected a single deferral entry: %+v", state.DeferredLenses)
	}
	if state.DeferredLenses[0].Rationale != "second rationale" {
		t.Fatalf("expected most recent non-empty rationale, got %q", state.DeferredLenses[0].Rationale)
	}
}

func TestLegacyDeferralAliasAccepted(t *testing.T) {
	a := artifact("security")
	lenses := []domain.Lens{lens("Security Review", "security")}
	events := []domain.GovernanceEvent{{
		Type:      domain.LegacyLensDeferral,
		LensID:    "Security Review",
		Rationale: "Handled in the follow-up cycle",
	}}
	state := inclusion.Compute(a, nil, lenses, events, opts)
	if len(state.MissingLenses) != 0 {
		t.Fatalf("legacy alias should defer the lens: %+v", state.MissingLenses)
	}
}

func TestHighImpactSynthesisGate(t *testing.T) {
	a := artifact("security")
	a.IsHighImpact = true
	lenses := []domain.Lens{lens("Security Review", "security")}
	events := []domain.GovernanceEvent{contribution("p1", "Security Review")}
	state := inclusion.Compute(a, nil, lenses, events, opts)
	if state.LockAvailable {
		t.Fatalf("expected synthesis gate to block lock")
	}
	foundRational, foundAffective := false, false
	for _, r := range state.Reasons {
		if r == "Synthesis lens required: Rational Synthesis" {
			foundRational = true
		}
		if r == "Synthesis lens required: Affective Synthesis" {
			foundAffective = true
		}
	}
	if !foundRational || !foundAffective {
		t.Fatalf("expected both synthesis lenses named in reasons: %v", state.Reasons)
	}

	// Synthesis contributions are counted even though they share no domains.
	events = append(events,
		contribution("p1", "Rational Synthesis"),
		contribution("p2", "Affective Synthesis"),
	)
	state = inclusion.Compute(a, nil, lenses, events, opts)
	if !state.SynthesisSatisfied || !state.LockAvailable {
		t.Fatalf("expected synthesis gate satisfied: %+v", state.Reasons)
	}
}

func TestShadowAffectBlocksLockUnconditionally(t *testing.T) {
	a := artifact("security")
	peers := []domain.Peer{peer("p1", "security")}
	lenses := []domain.Lens{lens("Security Review", "security")}
	events := []domain.GovernanceEvent{
		ack("p1"),
		contribution("p1", "Security Review"),
		deferLens("Security Review", "I need this to pass or I will lose my funding"),
	}
	state := inclusion.Compute(a, peers, lenses, events, opts)
	if len(state.DetectedShadowAffects) == 0 {
		t.Fatalf("expected shadow affects")
	}
	if state.LockAvailable {
		t.Fatalf("shadow affect must block lock even with all other gates satisfied")
	}
}

func TestReasonPriorityOrder(t *testing.T) {
	a := artifact("security", "ethics")
	peers := []domain.Peer{
		{ID: "p1", DisplayName: "Ada", Domains: []string{"security", "ethics"}},
		peer("p2", "security"),
	}
	lenses := []domain.Lens{lens("Security Review", "security")}
	state := inclusion.Compute(a, peers, lenses, nil, opts)
	if len(state.Reasons) < 3 {
		t.Fatalf("expected at least three reasons: %v", state.Reasons)
	}
	if state.Reasons[0] != "Awaiting acknowledgement from Ada" {
		t.Fatalf("primary expert must be named first: %v", state.Reasons)
	}
	if state.Reasons[1] != "1 partially affected peer(s) have not acknowledged" {
		t.Fatalf("partial count second: %v", state.Reasons)
	}
	if state.Reasons[2] != "Lens not represented: Security Review" {
		t.Fatalf("missing lens third: %v", state.Reasons)
	}
}

func TestProxyReviewRepresentsLens(t *testing.T) {
	a := artifact("security")
	lenses := []domain.Lens{lens("Security Review", "security")}
	events := []domain.GovernanceEvent{{Type: domain.EventProxyReview, LensID: "Security Review"}}
	state := inclusion.Compute(a, nil, lenses, events, opts)
	if len(state.MissingLenses) != 0 {
		t.Fatalf("proxy review should represent the lens: %+v", state.MissingLenses)
	}
}

func TestNonIntersectingLensContributionIgnored(t *testing.T) {
	a := artifact("security")
	lenses := []domain.Lens{lens("Security Review", "security"), lens("Finance Review", "finance")}
	events := []domain.GovernanceEvent{contribution("p1", "Finance Review")}
	state := inclusion.Compute(a, nil, lenses, events, opts)
	if len(state.RepresentedLenses) != 0 {
		t.Fatalf("non-intersecting lens must not be represented: %+v", state.RepresentedLenses)
	}
	if len(state.MissingLenses) != 1 || state.MissingLenses[0] != "Security Review" {
		t.Fatalf("unexpected missing lenses: %+v", state.MissingLenses)
	}
}

func TestCanLockWrapper(t *testing.T) {
	a := artifact("security")
	ok, state := inclusion.CanLock(a, nil, nil, nil, opts)
	if !ok || !state.LockAvailable {
		t.Fatalf("empty rosters should be lockable")
	}
}

func TestBuildLedgerSnapshot(t *testing.T) {
	a := artifact("security")
	peers := []domain.Peer{peer("p1", "security")}
	lenses := []domain.Lens{lens("Security Review", "security")}
	events := []domain.GovernanceEvent{ack("p1"), contribution("p1", "Security Review")}
	_, state := inclusion.CanLock(a, peers, lenses, events, opts)
	snap := inclusion.BuildLedgerSnapshot("art-1", state, "2024-01-01T00:00:00Z")
	if snap.ArtifactID != "art-1" || snap.Timestamp != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected snapshot header: %+v", snap)
	}
	if len(snap.NotifiedPeers) != 1 || snap.NotifiedPeers[0] != "p1" {
		t.Fatalf("notified peers should mirror intersecting peers: %+v", snap)
	}
	if len(snap.MissingLenses) != 0 {
		t.Fatalf("snapshot missing lenses must be empty")
	}
	if snap.AwarenessPercent != 1 {
		t.Fatalf("expected awareness 1.0")
	}
}
