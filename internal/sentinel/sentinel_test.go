package sentinel_test

import (
	"reflect"
	"testing"

	"aegis/internal/domain"
	"aegis/internal/sentinel"
)

func deferral(rationale string) domain.GovernanceEvent {
	return domain.GovernanceEvent{
		Type:      domain.EventDeferLens,
		LensID:    "Security Review",
		Rationale: rationale,
	}
}

func TestSurvivalLanguageDetected(t *testing.T) {
	got := sentinel.DetectShadowAffects([]domain.GovernanceEvent{
		deferral("I need this to pass or I will lose my funding"),
	})
	if len(got) == 0 {
		t.Fatalf("expected survival language match")
	}
	found := false
	for _, d := range got {
		if d == `Survival language: "I need"` {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'I need' match, got %v", got)
	}
}

func TestParentalToneDetected(t *testing.T) {
	got := sentinel.DetectShadowAffects([]domain.GovernanceEvent{
		deferral("Listen to me, this is fine because I said so."),
	})
	if len(got) != 2 {
		t.Fatalf("expected two parental matches, got %v", got)
	}
}

func TestGlitchMarkersDetected(t *testing.T) {
	for _, text := range []string{
		"rationale was [glitch] corrupted",
		"value is undefined after merge",
		"[object Object] appeared in the summary",
		"trailing {ghost} token",
	} {
		got := sentinel.DetectShadowAffects([]domain.GovernanceEvent{deferral(text)})
		if len(got) != 1 {
			t.Fatalf("text %q: expected one glitch match, got %v", text, got)
		}
	}
}

func TestCleanRationalePasses(t *testing.T) {
	got := sentinel.DetectShadowAffects([]domain.GovernanceEvent{
		deferral("Deferred pending the Q3 security audit; revisit after release."),
	})
	if got != nil {
		t.Fatalf("expected no matches, got %v", got)
	}
}

func TestEventsWithoutRationaleIgnored(t *testing.T) {
	got := sentinel.DetectShadowAffects([]domain.GovernanceEvent{
		{Type: domain.EventAwarenessAck, PeerID: "p1"},
		{Type: domain.EventContribution, PeerID: "p2", LensID: "Technical Review"},
	})
	if got != nil {
		t.Fatalf("expected no matches, got %v", got)
	}
}

func TestDuplicateMatchesDeduplicated(t *testing.T) {
	got := sentinel.DetectShadowAffects([]domain.GovernanceEvent{
		deferral("I need more time"),
		deferral("I need a second pass"),
	})
	if len(got) != 1 {
		t.Fatalf("expected deduplicated match, got %v", got)
	}
}

func TestResultStableAcrossOrdering(t *testing.T) {
	a := []domain.GovernanceEvent{deferral("I need this"), deferral("listen to me")}
	b := []domain.GovernanceEvent{deferral("listen to me"), deferral("I need this")}
	if !reflect.DeepEqual(sentinel.DetectShadowAffects(a), sentinel.DetectShadowAffects(b)) {
		t.Fatalf("result depends on event order")
	}
}
