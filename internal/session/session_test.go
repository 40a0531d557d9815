package session_test

import (
	"testing"
	"time"

	"aegis/internal/domain"
	"aegis/internal/session"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestCreateIsDraft(t *testing.T) {
	s := session.Create("art-1", t0)
	if s.Status != domain.SessionDraft {
		t.Fatalf("status = %q", s.Status)
	}
	if s.StartedAt != nil || s.LastActiveAt != nil || s.ClosedAt != nil {
		t.Fatalf("draft session must carry no lifecycle timestamps")
	}
	if s.Participants == nil || len(s.Participants) != 0 {
		t.Fatalf("participants = %v", s.Participants)
	}
}

func TestStartExclusivityPerArtifact(t *testing.T) {
	first := session.Create("art-1", t0)
	first, err := session.Start(first, nil, t0)
	if err != nil {
		t.Fatalf("start first: %v", err)
	}

	second := session.Create("art-1", t0)
	if _, err := session.Start(second, []domain.Session{first}, t0); err == nil {
		t.Fatalf("second active session for the same artifact must be refused")
	}

	// A session on a different artifact is unaffected.
	other := session.Create("art-2", t0)
	if _, err := session.Start(other, []domain.Session{first}, t0); err != nil {
		t.Fatalf("start on other artifact: %v", err)
	}

	// Closing the first frees the artifact.
	closed := session.Close(first, t0.Add(time.Minute))
	if _, err := session.Start(second, []domain.Session{closed}, t0.Add(time.Minute)); err != nil {
		t.Fatalf("start after close: %v", err)
	}
}

func TestStartStampsStartedAtOnce(t *testing.T) {
	s := session.Create("art-1", t0)
	s, err := session.Start(s, nil, t0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	started := *s.StartedAt
	s, err = session.Start(s, nil, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if *s.StartedAt != started {
		t.Fatalf("StartedAt moved on restart: %q -> %q", started, *s.StartedAt)
	}
	if *s.LastActiveAt == started {
		t.Fatalf("LastActiveAt must advance on restart")
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	s := session.Create("art-1", t0)
	s = session.Join(s, "ada")
	s = session.Join(s, "grace")
	s = session.Join(s, "ada")
	if len(s.Participants) != 2 {
		t.Fatalf("participants = %v", s.Participants)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := session.Create("art-1", t0)
	s, _ = session.Start(s, nil, t0)
	s = session.Close(s, t0.Add(time.Minute))
	closedAt := *s.ClosedAt
	s = session.Close(s, t0.Add(time.Hour))
	if *s.ClosedAt != closedAt {
		t.Fatalf("ClosedAt moved on second close")
	}
}

func TestTouchOnlyMovesActiveSessions(t *testing.T) {
	s := session.Create("art-1", t0)
	s = session.Touch(s, t0.Add(time.Minute))
	if s.LastActiveAt != nil {
		t.Fatalf("touch on draft must be a no-op")
	}
	s, _ = session.Start(s, nil, t0)
	s = session.Touch(s, t0.Add(2*time.Minute))
	if *s.LastActiveAt != t0.Add(2*time.Minute).Format(time.RFC3339) {
		t.Fatalf("LastActiveAt = %q", *s.LastActiveAt)
	}
}

func TestAbandonmentIsStrictlyGreaterThanWindow(t *testing.T) {
	window := 30 * time.Minute
	s := session.Create("art-1", t0)
	s, _ = session.Start(s, nil, t0)

	// Exactly at the boundary: not abandoned.
	out, changed := session.ApplyAbandonment([]domain.Session{s}, window, t0.Add(window))
	if changed || out[0].Status != domain.SessionActive {
		t.Fatalf("boundary must not abandon: changed=%v status=%q", changed, out[0].Status)
	}

	// One second past: abandoned.
	out, changed = session.ApplyAbandonment([]domain.Session{s}, window, t0.Add(window+time.Second))
	if !changed {
		t.Fatalf("expected change flag")
	}
	if out[0].Status != domain.SessionAbandoned || out[0].AbandonmentReason != "inactivity" {
		t.Fatalf("session = %+v", out[0])
	}
	if out[0].ClosedAt == nil || *out[0].ClosedAt != t0.Add(window+time.Second).Format(time.RFC3339) {
		t.Fatalf("ClosedAt = %v", out[0].ClosedAt)
	}
}

func TestAbandonmentFallsBackToStartedAt(t *testing.T) {
	started := t0.Format(time.RFC3339)
	s := domain.Session{
		ID:         "SES-legacy",
		ArtifactID: "art-1",
		Status:     domain.SessionActive,
		StartedAt:  &started,
		CreatedAt:  started,
	}
	out, changed := session.ApplyAbandonment([]domain.Session{s}, 30*time.Minute, t0.Add(31*time.Minute))
	if !changed || out[0].Status != domain.SessionAbandoned {
		t.Fatalf("session with only StartedAt must still be swept: %+v", out[0])
	}
}

func TestAbandonedSessionCannotRestart(t *testing.T) {
	s := session.Create("art-1", t0)
	s, _ = session.Start(s, nil, t0)
	out, _ := session.ApplyAbandonment([]domain.Session{s}, time.Minute, t0.Add(time.Hour))
	if _, err := session.Start(out[0], nil, t0.Add(2*time.Hour)); err == nil {
		t.Fatalf("abandoned session must not restart")
	}
}

func TestAbandonmentSkipsInactiveAndReportsNoChange(t *testing.T) {
	closed := session.Close(session.Create("art-1", t0), t0)
	draft := session.Create("art-1", t0)
	out, changed := session.ApplyAbandonment([]domain.Session{closed, draft}, time.Minute, t0.Add(time.Hour))
	if changed {
		t.Fatalf("quiet sweep must report no change")
	}
	if out[0].Status != domain.SessionClosed || out[1].Status != domain.SessionDraft {
		t.Fatalf("statuses = %q %q", out[0].Status, out[1].Status)
	}
}
