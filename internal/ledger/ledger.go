// Package ledger is the append-only store for governed operations.
// Operations are never updated in place: a status change appends a new
// record chained to its predecessor, and the current value of an operation
// is always the latest record of its lineage.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"aegis/internal/domain"
)

var ErrNotFound = errors.New("operation not found")

// TerminalStatusError refuses revisions of a lineage whose head already
// reached executed, rejected or failed. A retry starts with a fresh proposal.
type TerminalStatusError struct {
	ID     string
	Status string
}

func (e TerminalStatusError) Error() string {
	return fmt.Sprintf("operation %s is %s; terminal lineages take no further revisions", e.ID, e.Status)
}

// TerminalStatus reports whether a status ends its lineage.
func TerminalStatus(status string) bool {
	switch status {
	case domain.OpExecuted, domain.OpRejected, domain.OpFailed:
		return true
	}
	return false
}

// AssertGovernedOperation is the structural gate run before every append.
// Violations are programmer errors; an invalid record must never persist.
func AssertGovernedOperation(op domain.GovernedOperation) error {
	if op.ID == "" {
		return errors.New("governed operation: id required")
	}
	if !strings.HasPrefix(op.ID, "OP-") {
		return fmt.Errorf("governed operation %s: id must have OP- prefix", op.ID)
	}
	if op.ArtifactID == "" {
		return fmt.Errorf("governed operation %s: artifact_id required", op.ID)
	}
	if op.CreatedAt == "" {
		return fmt.Errorf("governed operation %s: created_at required", op.ID)
	}
	switch op.Status {
	case domain.OpProposed, domain.OpRequested, domain.OpExecuted, domain.OpRejected, domain.OpFailed:
	default:
		return fmt.Errorf("governed operation %s: invalid status %q", op.ID, op.Status)
	}
	switch op.Mode {
	case domain.ModeReadOnly, domain.ModeWrite, domain.ModeAdmin:
	default:
		return fmt.Errorf("governed operation %s: invalid mode %q", op.ID, op.Mode)
	}
	if op.Proposal.ToolName == "" && op.Proposal.ToolID == "" {
		return fmt.Errorf("governed operation %s: proposal requires a tool", op.ID)
	}
	return nil
}

// NewOperationID mints a fresh record id.
func NewOperationID() string {
	return "OP-" + uuid.New().String()
}

// FindOriginalID follows PreviousID pointers until it reaches an id with no
// corresponding ledger record, which is the true original. A visited set
// guards against corrupted ledgers with pointer cycles; on a cycle the walk
// stops and returns the id where the cycle closed.
func FindOriginalID(op domain.GovernedOperation, all []domain.GovernedOperation) string {
	byID := map[string]domain.GovernedOperation{}
	for _, o := range all {
		byID[o.ID] = o
	}
	visited := map[string]bool{}
	cur := op
	for {
		if cur.PreviousID == nil || *cur.PreviousID == "" {
			return cur.ID
		}
		prev, ok := byID[*cur.PreviousID]
		if !ok {
			return *cur.PreviousID
		}
		if visited[prev.ID] {
			return prev.ID
		}
		visited[prev.ID] = true
		cur = prev
	}
}

// DeriveCurrent walks the flat append-only list in insertion order and keeps
// the latest record per lineage. Records carry an explicit LineageID stamped
// at proposal time; legacy records without one fall back to the PreviousID
// walk.
func DeriveCurrent(all []domain.GovernedOperation) []domain.GovernedOperation {
	latest := map[string]domain.GovernedOperation{}
	var order []string
	for _, op := range all {
		root := op.LineageID
		if root == "" {
			root = FindOriginalID(op, all)
		}
		if _, seen := latest[root]; !seen {
			order = append(order, root)
		}
		latest[root] = op
	}
	out := make([]domain.GovernedOperation, 0, len(order))
	for _, root := range order {
		out = append(out, latest[root])
	}
	return out
}

// StatusPatch describes the fields a revision may change.
type StatusPatch struct {
	Status  string
	Request *domain.OperationRequest
	Result  *domain.OperationResult
}

// Store persists the operation ledger in sqlite. Appends run inside
// transactions; UpdateStatus re-derives the lineage head inside the same
// transaction before appending, so concurrent revisions of one operation
// serialize at the database.
type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

func (s Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Append validates shape then inserts a new record.
func (s Store) Append(ctx context.Context, op domain.GovernedOperation) error {
	if err := AssertGovernedOperation(op); err != nil {
		return err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.insertTx(ctx, tx, op); err != nil {
		return err
	}
	return tx.Commit()
}

func (s Store) insertTx(ctx context.Context, tx *sql.Tx, op domain.GovernedOperation) error {
	proposal, err := json.Marshal(op.Proposal)
	if err != nil {
		return fmt.Errorf("marshal proposal: %w", err)
	}
	var request, result any
	if op.Request != nil {
		b, err := json.Marshal(op.Request)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		request = string(b)
	}
	if op.Result != nil {
		b, err := json.Marshal(op.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		result = string(b)
	}
	lineageID := op.LineageID
	if lineageID == "" {
		lineageID = op.ID
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO gov_ops(id,lineage_id,previous_id,artifact_id,created_at,status,mode,proposal_json,request_json,result_json,session_id,peer_id)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		op.ID, lineageID, nullableStringPtr(op.PreviousID), op.ArtifactID, op.CreatedAt, op.Status, op.Mode,
		string(proposal), request, result, nullable(op.Lineage.SessionID), nullable(op.Lineage.PeerID))
	return err
}

// UpdateStatus appends a revision of the operation identified by id. The
// patch is applied to the derived current record of the lineage; the new
// record's PreviousID follows the reference chaining rule
// (current.PreviousID, else current.ID) and its LineageID is inherited.
func (s Store) UpdateStatus(ctx context.Context, id string, patch StatusPatch) (domain.GovernedOperation, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.GovernedOperation{}, err
	}
	defer tx.Rollback()

	rev, err := s.appendRevisionTx(ctx, tx, id, patch)
	if err != nil {
		return domain.GovernedOperation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.GovernedOperation{}, err
	}
	return rev, nil
}

func (s Store) appendRevisionTx(ctx context.Context, tx *sql.Tx, id string, patch StatusPatch) (domain.GovernedOperation, error) {
	target, err := s.getTx(ctx, tx, id)
	if err != nil {
		return domain.GovernedOperation{}, err
	}
	all, err := s.loadLineageTx(ctx, tx, target.LineageID)
	if err != nil {
		return domain.GovernedOperation{}, err
	}
	current := target
	if heads := DeriveCurrent(all); len(heads) == 1 {
		current = heads[0]
	}
	if TerminalStatus(current.Status) {
		return domain.GovernedOperation{}, TerminalStatusError{ID: current.ID, Status: current.Status}
	}

	rev := current
	rev.Seq = 0
	rev.ID = NewOperationID()
	if current.PreviousID != nil && *current.PreviousID != "" {
		prev := *current.PreviousID
		rev.PreviousID = &prev
	} else {
		prev := current.ID
		rev.PreviousID = &prev
	}
	rev.CreatedAt = s.now().UTC().Format(time.RFC3339)
	if patch.Status != "" {
		rev.Status = patch.Status
	}
	if patch.Request != nil {
		rev.Request = patch.Request
	}
	if patch.Result != nil {
		rev.Result = patch.Result
	}
	if err := AssertGovernedOperation(rev); err != nil {
		return domain.GovernedOperation{}, err
	}
	if err := s.insertTx(ctx, tx, rev); err != nil {
		return domain.GovernedOperation{}, err
	}
	return rev, nil
}

// GetByID returns the raw record with the given id.
func (s Store) GetByID(ctx context.Context, id string) (domain.GovernedOperation, error) {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return domain.GovernedOperation{}, err
	}
	defer tx.Rollback()
	return s.getTx(ctx, tx, id)
}

func (s Store) getTx(ctx context.Context, tx *sql.Tx, id string) (domain.GovernedOperation, error) {
	row := tx.QueryRowContext(ctx, `SELECT seq,id,lineage_id,previous_id,artifact_id,created_at,status,mode,proposal_json,request_json,result_json,session_id,peer_id
FROM gov_ops WHERE id=?`, id)
	op, err := scanOp(row.Scan)
	if err == sql.ErrNoRows {
		return op, ErrNotFound
	}
	return op, err
}

// LoadOps returns every raw record for the artifact in insertion order.
func (s Store) LoadOps(ctx context.Context, artifactID string) ([]domain.GovernedOperation, error) {
	return s.query(ctx, `SELECT seq,id,lineage_id,previous_id,artifact_id,created_at,status,mode,proposal_json,request_json,result_json,session_id,peer_id
FROM gov_ops WHERE artifact_id=? ORDER BY seq ASC`, artifactID)
}

func (s Store) loadLineageTx(ctx context.Context, tx *sql.Tx, lineageID string) ([]domain.GovernedOperation, error) {
	rows, err := tx.QueryContext(ctx, `SELECT seq,id,lineage_id,previous_id,artifact_id,created_at,status,mode,proposal_json,request_json,result_json,session_id,peer_id
FROM gov_ops WHERE lineage_id=? ORDER BY seq ASC`, lineageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// CurrentFor derives the current lineage state of the record with the given
// id.
func (s Store) CurrentFor(ctx context.Context, id string) (domain.GovernedOperation, error) {
	op, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.GovernedOperation{}, err
	}
	all, err := s.query(ctx, `SELECT seq,id,lineage_id,previous_id,artifact_id,created_at,status,mode,proposal_json,request_json,result_json,session_id,peer_id
FROM gov_ops WHERE lineage_id=? ORDER BY seq ASC`, op.LineageID)
	if err != nil {
		return domain.GovernedOperation{}, err
	}
	heads := DeriveCurrent(all)
	if len(heads) == 0 {
		return domain.GovernedOperation{}, ErrNotFound
	}
	return heads[0], nil
}

func (s Store) query(ctx context.Context, q string, args ...any) ([]domain.GovernedOperation, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows *sql.Rows) ([]domain.GovernedOperation, error) {
	var res []domain.GovernedOperation
	for rows.Next() {
		op, err := scanOp(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, op)
	}
	return res, rows.Err()
}

// scanOp decodes one row. Malformed persisted JSON degrades to the zero
// value for that field rather than failing the whole load; freshly written
// records are validated before insert so this only absorbs corruption.
func scanOp(scan func(...any) error) (domain.GovernedOperation, error) {
	var op domain.GovernedOperation
	var previousID, requestJSON, resultJSON, sessionID, peerID sql.NullString
	var proposalJSON string
	err := scan(&op.Seq, &op.ID, &op.LineageID, &previousID, &op.ArtifactID, &op.CreatedAt,
		&op.Status, &op.Mode, &proposalJSON, &requestJSON, &resultJSON, &sessionID, &peerID)
	if err != nil {
		return op, err
	}
	if previousID.Valid {
		op.PreviousID = &previousID.String
	}
	_ = json.Unmarshal([]byte(proposalJSON), &op.Proposal)
	if requestJSON.Valid && requestJSON.String != "" {
		var req domain.OperationRequest
		if json.Unmarshal([]byte(requestJSON.String), &req) == nil {
			op.Request = &req
		}
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result domain.OperationResult
		if json.Unmarshal([]byte(resultJSON.String), &result) == nil {
			op.Result = &result
		}
	}
	if sessionID.Valid {
		op.Lineage.SessionID = sessionID.String
	}
	if peerID.Valid {
		op.Lineage.PeerID = peerID.String
	}
	return op, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
