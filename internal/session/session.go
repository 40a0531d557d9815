// Package session manages deliberation session lifecycles. The rules live
// as pure functions over session slices so the engine can apply them to
// persisted rows and tests can run them against literals.
package session

import (
	"fmt"
	"time"

	"aegis/internal/domain"

	"github.com/google/uuid"
)

// Create returns a fresh Draft session for the artifact. Participants start
// empty and the session holds no timestamps until started.
func Create(artifactID string, now time.Time) domain.Session {
	return domain.Session{
		ID:           "SES-" + uuid.NewString(),
		ArtifactID:   artifactID,
		Status:       domain.SessionDraft,
		Participants: []string{},
		CreatedAt:    now.UTC().Format(time.RFC3339),
	}
}

// Start activates the session. At most one session per artifact may be
// Active, so Start scans its siblings first. StartedAt is stamped only on
// the first activation; LastActiveAt moves on every one.
func Start(s domain.Session, siblings []domain.Session, now time.Time) (domain.Session, error) {
	for _, other := range siblings {
		if other.ID != s.ID && other.ArtifactID == s.ArtifactID && other.Status == domain.SessionActive {
			return s, fmt.Errorf("active session already exists for artifact %s", s.ArtifactID)
		}
	}
	if s.Status == domain.SessionClosed || s.Status == domain.SessionAbandoned {
		return s, fmt.Errorf("session %s is %s", s.ID, s.Status)
	}
	ts := now.UTC().Format(time.RFC3339)
	if s.StartedAt == nil {
		s.StartedAt = &ts
	}
	s.LastActiveAt = &ts
	s.Status = domain.SessionActive
	return s, nil
}

// Close ends the session. Closing is idempotent.
func Close(s domain.Session, now time.Time) domain.Session {
	if s.Status == domain.SessionClosed {
		return s
	}
	ts := now.UTC().Format(time.RFC3339)
	s.Status = domain.SessionClosed
	s.ClosedAt = &ts
	return s
}

// Join adds a participant. Joining twice is a no-op.
func Join(s domain.Session, peerID string) domain.Session {
	for _, p := range s.Participants {
		if p == peerID {
			return s
		}
	}
	s.Participants = append(append([]string{}, s.Participants...), peerID)
	return s
}

// Touch records activity on an active session.
func Touch(s domain.Session, now time.Time) domain.Session {
	if s.Status != domain.SessionActive {
		return s
	}
	ts := now.UTC().Format(time.RFC3339)
	s.LastActiveAt = &ts
	return s
}

// ApplyAbandonment marks Active sessions whose inactivity strictly exceeds
// the window as Abandoned, closing them as of now. It returns the updated
// slice and whether any session changed, so callers skip persistence on a
// quiet sweep. Inactivity is measured from LastActiveAt, falling back to
// StartedAt for rows that never recorded activity.
func ApplyAbandonment(sessions []domain.Session, inactivity time.Duration, now time.Time) ([]domain.Session, bool) {
	out := make([]domain.Session, len(sessions))
	copy(out, sessions)
	changed := false
	for i, s := range out {
		if s.Status != domain.SessionActive {
			continue
		}
		ref := s.LastActiveAt
		if ref == nil {
			ref = s.StartedAt
		}
		if ref == nil {
			continue
		}
		last, err := time.Parse(time.RFC3339, *ref)
		if err != nil {
			continue
		}
		if now.Sub(last) > inactivity {
			ts := now.UTC().Format(time.RFC3339)
			out[i].Status = domain.SessionAbandoned
			out[i].AbandonmentReason = "inactivity"
			out[i].ClosedAt = &ts
			changed = true
		}
	}
	return out, changed
}
