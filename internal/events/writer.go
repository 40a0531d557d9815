// Package events appends and reads the append-only governance event log.
package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"aegis/internal/domain"

	"github.com/google/uuid"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Append inserts one governance event inside the caller's transaction.
// The legacy deferral alias is normalized before validation so old
// producers keep working while only the canonical type is persisted.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, ev domain.GovernanceEvent) (domain.GovernanceEvent, error) {
	ev.Type = domain.NormalizeEventType(ev.Type)
	if !domain.ValidEventType(ev.Type) {
		return domain.GovernanceEvent{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.ArtifactID == "" {
		return domain.GovernanceEvent{}, fmt.Errorf("event requires artifact_id")
	}
	if ev.EventID == "" {
		ev.EventID = "EV-" + uuid.NewString()
	}
	if ev.TS == "" {
		ev.TS = w.now().UTC().Format(time.RFC3339)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO gov_events(event_id,artifact_id,type,peer_id,lens_id,rationale,awareness_before,awareness_after,ts) VALUES (?,?,?,?,?,?,?,?,?)`,
		ev.EventID, ev.ArtifactID, string(ev.Type), nullable(ev.PeerID), nullable(ev.LensID), nullable(ev.Rationale),
		nullableFloat(ev.AwarenessBefore), nullableFloat(ev.AwarenessAfter), ev.TS)
	if err != nil {
		return domain.GovernanceEvent{}, fmt.Errorf("append governance event: %w", err)
	}
	return ev, nil
}

// AppendDirect wraps Append in its own transaction.
func (w Writer) AppendDirect(ctx context.Context, ev domain.GovernanceEvent) (domain.GovernanceEvent, error) {
	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.GovernanceEvent{}, err
	}
	defer tx.Rollback()
	out, err := w.Append(ctx, tx, ev)
	if err != nil {
		return domain.GovernanceEvent{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.GovernanceEvent{}, err
	}
	return out, nil
}

// ListForArtifact returns the artifact's events in insertion order.
func (w Writer) ListForArtifact(ctx context.Context, artifactID string) ([]domain.GovernanceEvent, error) {
	rows, err := w.DB.QueryContext(ctx,
		`SELECT seq,event_id,artifact_id,type,peer_id,lens_id,rationale,awareness_before,awareness_after,ts FROM gov_events WHERE artifact_id=? ORDER BY seq ASC`,
		artifactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.GovernanceEvent
	for rows.Next() {
		var ev domain.GovernanceEvent
		var typ string
		var peerID, lensID, rationale sql.NullString
		var before, after sql.NullFloat64
		if err := rows.Scan(&ev.Seq, &ev.EventID, &ev.ArtifactID, &typ, &peerID, &lensID, &rationale, &before, &after, &ev.TS); err != nil {
			return nil, err
		}
		ev.Type = domain.NormalizeEventType(domain.EventType(typ))
		ev.PeerID = peerID.String
		ev.LensID = lensID.String
		ev.Rationale = rationale.String
		if before.Valid {
			v := before.Float64
			ev.AwarenessBefore = &v
		}
		if after.Valid {
			v := after.Float64
			ev.AwarenessAfter = &v
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Tail returns the most recent events across all artifacts, newest last.
func (w Writer) Tail(ctx context.Context, limit int) ([]domain.GovernanceEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := w.DB.QueryContext(ctx,
		`SELECT seq,event_id,artifact_id,type,peer_id,lens_id,rationale,awareness_before,awareness_after,ts FROM gov_events ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var desc []domain.GovernanceEvent
	for rows.Next() {
		var ev domain.GovernanceEvent
		var typ string
		var peerID, lensID, rationale sql.NullString
		var before, after sql.NullFloat64
		if err := rows.Scan(&ev.Seq, &ev.EventID, &ev.ArtifactID, &typ, &peerID, &lensID, &rationale, &before, &after, &ev.TS); err != nil {
			return nil, err
		}
		ev.Type = domain.NormalizeEventType(domain.EventType(typ))
		ev.PeerID = peerID.String
		ev.LensID = lensID.String
		ev.Rationale = rationale.String
		if before.Valid {
			v := before.Float64
			ev.AwarenessBefore = &v
		}
		if after.Valid {
			v := after.Float64
			ev.AwarenessAfter = &v
		}
		desc = append(desc, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(desc)-1; i < j; i, j = i+1, j-1 {
		desc[i], desc[j] = desc[j], desc[i]
	}
	return desc, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
