package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"aegis/internal/config"
	"aegis/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func marshalStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func unmarshalStrings(raw string) []string {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func (r Repo) InsertArtifact(ctx context.Context, a domain.Artifact) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO artifacts(id,title,domain_tags_json,status,is_high_impact,has_tension,created_at) VALUES (?,?,?,?,?,?,?)`,
		a.ID, nullable(a.Title), marshalStrings(a.DomainTags), a.Status, boolInt(a.IsHighImpact), boolInt(a.HasTension), a.CreatedAt)
	return err
}

func scanArtifact(row interface{ Scan(...any) error }) (domain.Artifact, error) {
	var a domain.Artifact
	var tags string
	var high, tension int
	err := row.Scan(&a.ID, &a.Title, &tags, &a.Status, &high, &tension, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.DomainTags = unmarshalStrings(tags)
	a.IsHighImpact = high != 0
	a.HasTension = tension != 0
	return a, nil
}

const artifactCols = `id,COALESCE(title,'') AS title,domain_tags_json,status,is_high_impact,has_tension,created_at`

func (r Repo) GetArtifact(ctx context.Context, id string) (domain.Artifact, error) {
	return scanArtifact(r.DB.QueryRowContext(ctx, `SELECT `+artifactCols+` FROM artifacts WHERE id=?`, id))
}

// SingleArtifact resolves the workspace artifact when exactly one exists.
func (r Repo) SingleArtifact(ctx context.Context) (domain.Artifact, error) {
	all, err := r.ListArtifacts(ctx)
	if err != nil {
		return domain.Artifact{}, err
	}
	if len(all) == 0 {
		return domain.Artifact{}, ErrNotFound
	}
	if len(all) > 1 {
		return domain.Artifact{}, fmt.Errorf("multiple artifacts exist; specify --artifact")
	}
	return all[0], nil
}

func (r Repo) ListArtifacts(ctx context.Context) ([]domain.Artifact, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+artifactCols+` FROM artifacts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) UpdateArtifactStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE artifacts SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertArtifactConfig(ctx context.Context, artifactID string, cfg config.Config, ts string) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal artifact config: %w", err)
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO artifact_configs(artifact_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
		 ON CONFLICT(artifact_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`,
		artifactID, string(data), ts, ts)
	return err
}

func (r Repo) GetArtifactConfig(ctx context.Context, artifactID string) (config.Config, error) {
	var raw string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM artifact_configs WHERE artifact_id=?`, artifactID).Scan(&raw)
	if err == sql.ErrNoRows {
		return config.Config{}, ErrNotFound
	}
	if err != nil {
		return config.Config{}, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return config.Config{}, fmt.Errorf("decode artifact config: %w", err)
	}
	return cfg, nil
}

func (r Repo) InsertPeer(ctx context.Context, p domain.Peer) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO peers(id,type,display_name,domains_json,acknowledged,created_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.Type, nullable(p.DisplayName), marshalStrings(p.Domains), boolInt(p.Acknowledged), p.CreatedAt)
	return err
}

func (r Repo) GetPeer(ctx context.Context, id string) (domain.Peer, error) {
	var p domain.Peer
	var domains string
	var acked int
	err := r.DB.QueryRowContext(ctx,
		`SELECT id,type,COALESCE(display_name,'') AS display_name,domains_json,acknowledged,created_at FROM peers WHERE id=?`, id).
		Scan(&p.ID, &p.Type, &p.DisplayName, &domains, &acked, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Domains = unmarshalStrings(domains)
	p.Acknowledged = acked != 0
	return p, nil
}

func (r Repo) ListPeers(ctx context.Context) ([]domain.Peer, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,type,COALESCE(display_name,'') AS display_name,domains_json,acknowledged,created_at FROM peers ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Peer
	for rows.Next() {
		var p domain.Peer
		var domains string
		var acked int
		if err := rows.Scan(&p.ID, &p.Type, &p.DisplayName, &domains, &acked, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Domains = unmarshalStrings(domains)
		p.Acknowledged = acked != 0
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) InsertLens(ctx context.Context, l domain.Lens) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO lenses(id,domains_json,auto_review,description,created_at) VALUES (?,?,?,?,?)`,
		l.ID, marshalStrings(l.Domains), boolInt(l.AutoReview), nullable(l.Description), l.CreatedAt)
	return err
}

func (r Repo) ListLenses(ctx context.Context) ([]domain.Lens, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,domains_json,auto_review,COALESCE(description,'') AS description,created_at FROM lenses ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Lens
	for rows.Next() {
		var l domain.Lens
		var domains string
		var auto int
		if err := rows.Scan(&l.ID, &domains, &auto, &l.Description, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Domains = unmarshalStrings(domains)
		l.AutoReview = auto != 0
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) UpsertSession(ctx context.Context, s domain.Session) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO sessions(id,artifact_id,status,started_at,last_active_at,closed_at,participants_json,abandonment_reason,created_at)
		 VALUES (?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, started_at=excluded.started_at, last_active_at=excluded.last_active_at,
		   closed_at=excluded.closed_at, participants_json=excluded.participants_json, abandonment_reason=excluded.abandonment_reason`,
		s.ID, s.ArtifactID, s.Status, nullableStringPtr(s.StartedAt), nullableStringPtr(s.LastActiveAt), nullableStringPtr(s.ClosedAt),
		marshalStrings(s.Participants), nullable(s.AbandonmentReason), s.CreatedAt)
	return err
}

const sessionCols = `id,artifact_id,status,started_at,last_active_at,closed_at,participants_json,COALESCE(abandonment_reason,'') AS abandonment_reason,created_at`

func scanSession(row interface{ Scan(...any) error }) (domain.Session, error) {
	var s domain.Session
	var started, lastActive, closed sql.NullString
	var participants string
	err := row.Scan(&s.ID, &s.ArtifactID, &s.Status, &started, &lastActive, &closed, &participants, &s.AbandonmentReason, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if started.Valid {
		s.StartedAt = &started.String
	}
	if lastActive.Valid {
		s.LastActiveAt = &lastActive.String
	}
	if closed.Valid {
		s.ClosedAt = &closed.String
	}
	s.Participants = unmarshalStrings(participants)
	return s, nil
}

func (r Repo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	return scanSession(r.DB.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id=?`, id))
}

func (r Repo) ListSessions(ctx context.Context, artifactID string) ([]domain.Session, error) {
	q := `SELECT ` + sessionCols + ` FROM sessions ORDER BY created_at ASC`
	args := []any{}
	if artifactID != "" {
		q = `SELECT ` + sessionCols + ` FROM sessions WHERE artifact_id=? ORDER BY created_at ASC`
		args = append(args, artifactID)
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) InsertLedgerSnapshot(ctx context.Context, tx *sql.Tx, id string, snap domain.PeerConsiderationLedger) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal ledger snapshot: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_snapshots(id,artifact_id,snapshot_json,ts) VALUES (?,?,?,?)`,
		id, snap.ArtifactID, string(data), snap.Timestamp)
	return err
}

func (r Repo) ListLedgerSnapshots(ctx context.Context, artifactID string) ([]domain.PeerConsiderationLedger, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT snapshot_json FROM ledger_snapshots WHERE artifact_id=? ORDER BY ts ASC`, artifactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PeerConsiderationLedger
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var snap domain.PeerConsiderationLedger
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			continue
		}
		res = append(res, snap)
	}
	return res, rows.Err()
}

func (r Repo) InsertBoardMessage(ctx context.Context, m domain.BoardMessage) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO board_messages(id,artifact_id,peer_id,op_id,body,created_at) VALUES (?,?,?,?,?,?)`,
		m.ID, m.ArtifactID, m.PeerID, m.OpID, m.Body, m.CreatedAt)
	return err
}

func (r Repo) ListBoardMessages(ctx context.Context, artifactID string) ([]domain.BoardMessage, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,artifact_id,peer_id,op_id,body,created_at FROM board_messages WHERE artifact_id=? ORDER BY created_at ASC`, artifactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BoardMessage
	for rows.Next() {
		var m domain.BoardMessage
		if err := rows.Scan(&m.ID, &m.ArtifactID, &m.PeerID, &m.OpID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
