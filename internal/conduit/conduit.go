// Package conduit executes governed read-only tool calls against the
// operation ledger: capability-scoped, path-allowlisted, executed exactly
// once per operation lineage, with every attempt recorded.
package conduit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aegis/internal/domain"
	"aegis/internal/ledger"
)

// PolicyError marks governance-contract violations: wrong mode, unrecognized
// tool, missing accepted request, path outside the allowlist. These are
// caller errors and are never retried automatically.
type PolicyError struct {
	Msg string
}

func (e PolicyError) Error() string { return e.Msg }

func policyErrorf(format string, args ...any) error {
	return PolicyError{Msg: fmt.Sprintf(format, args...)}
}

const (
	// DefaultInlineCapBytes caps inline result content; larger files are
	// stored as a preview with the content marked omitted.
	DefaultInlineCapBytes = 100 * 1024
	DefaultPreviewChars   = 500
)

var defaultReaders = []string{"read_file", "readfile", "file.read", "fs.readfile"}

// Conduit wraps the ledger with execution policy. Root is the virtual root
// canonical paths resolve under. ReadFile is injectable for tests and
// defaults to os.ReadFile.
type Conduit struct {
	Ledger         ledger.Store
	Root           string
	ReaderNames    []string
	InlineCapBytes int
	PreviewChars   int
	ReadFile       func(path string) ([]byte, error)
	Now            func() time.Time
}

func (c Conduit) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Conduit) readers() []string {
	if len(c.ReaderNames) > 0 {
		return c.ReaderNames
	}
	return defaultReaders
}

func (c Conduit) inlineCap() int {
	if c.InlineCapBytes > 0 {
		return c.InlineCapBytes
	}
	return DefaultInlineCapBytes
}

func (c Conduit) previewChars() int {
	if c.PreviewChars > 0 {
		return c.PreviewChars
	}
	return DefaultPreviewChars
}

func (c Conduit) readFile(path string) ([]byte, error) {
	if c.ReadFile != nil {
		return c.ReadFile(path)
	}
	return os.ReadFile(path)
}

// ProposeParams describe a new read-only tool-call proposal.
type ProposeParams struct {
	ArtifactID string
	ToolID     string
	ToolName   string
	Intent     string
	Scope      []string
	Allow      []string
	Rationale  string
	SessionID  string
	PeerID     string
}

// ProposeReadOnlyToolCall appends a Proposed read-only operation whose
// constraints carry the allow: path prefixes.
func (c Conduit) ProposeReadOnlyToolCall(ctx context.Context, p ProposeParams) (domain.GovernedOperation, error) {
	constraints := make([]string, 0, len(p.Allow))
	for _, prefix := range p.Allow {
		constraints = append(constraints, "allow:"+prefix)
	}
	op := domain.GovernedOperation{
		ID:         ledger.NewOperationID(),
		ArtifactID: p.ArtifactID,
		CreatedAt:  c.now().UTC().Format(time.RFC3339),
		Status:     domain.OpProposed,
		Mode:       domain.ModeReadOnly,
		Proposal: domain.OperationProposal{
			ToolID:      p.ToolID,
			ToolName:    p.ToolName,
			Intent:      p.Intent,
			Scope:       p.Scope,
			Constraints: constraints,
			Rationale:   p.Rationale,
		},
		Lineage: domain.OperationLineage{SessionID: p.SessionID, PeerID: p.PeerID},
	}
	op.LineageID = op.ID
	if err := c.Ledger.Append(ctx, op); err != nil {
		return domain.GovernedOperation{}, err
	}
	return op, nil
}

// AcceptRequest appends a Requested revision with an accepted execution
// request.
func (c Conduit) AcceptRequest(ctx context.Context, opID, approvedBy string, parameters map[string]any) (domain.GovernedOperation, error) {
	return c.Ledger.UpdateStatus(ctx, opID, ledger.StatusPatch{
		Status: domain.OpRequested,
		Request: &domain.OperationRequest{
			RequestedAt: c.now().UTC().Format(time.RFC3339),
			Accepted:    true,
			ApprovedBy:  approvedBy,
			Parameters:  parameters,
		},
	})
}

// Reject appends a terminal Rejected revision.
func (c Conduit) Reject(ctx context.Context, opID, rejectedBy string) (domain.GovernedOperation, error) {
	return c.Ledger.UpdateStatus(ctx, opID, ledger.StatusPatch{
		Status: domain.OpRejected,
		Request: &domain.OperationRequest{
			RequestedAt: c.now().UTC().Format(time.RFC3339),
			Accepted:    false,
			ApprovedBy:  rejectedBy,
		},
	})
}

// ReadSpec names the file to read and its decode encoding.
type ReadSpec struct {
	Path     string
	Encoding string
}

// ExecuteGovernedReadOnlyTool runs the read for an accepted operation.
// Replays of an already-executed lineage return the recorded result without
// touching the filesystem. I/O failures append a Failed revision and are
// re-thrown so the caller observes them while the ledger keeps the attempt.
func (c Conduit) ExecuteGovernedReadOnlyTool(ctx context.Context, opID string, spec ReadSpec) (domain.OperationResult, error) {
	if _, err := c.Ledger.GetByID(ctx, opID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return domain.OperationResult{}, fmt.Errorf("governed operation %s not found", opID)
		}
		return domain.OperationResult{}, err
	}
	current, err := c.Ledger.CurrentFor(ctx, opID)
	if err != nil {
		return domain.OperationResult{}, fmt.Errorf("derive current state for %s: %w", opID, err)
	}

	if current.Mode != domain.ModeReadOnly {
		return domain.OperationResult{}, policyErrorf("Phase 1 Error: operation %s has mode %s; only read-only execution is permitted", opID, current.Mode)
	}
	if !c.isRecognizedReader(current.Proposal.ToolName) {
		return domain.OperationResult{}, policyErrorf("tool %q is not a recognized read-only file reader", current.Proposal.ToolName)
	}
	if current.Request == nil || !current.Request.Accepted {
		return domain.OperationResult{}, policyErrorf("operation %s has no accepted execution request", opID)
	}

	allow, err := allowlistFromConstraints(current.Proposal.Constraints)
	if err != nil {
		return domain.OperationResult{}, policyErrorf("operation %s allowlist: %v", opID, err)
	}
	if len(allow) == 0 {
		return domain.OperationResult{}, policyErrorf("operation %s carries no allow: constraints; denying by default", opID)
	}
	canonical, err := CanonicalizePath(spec.Path)
	if err != nil {
		return domain.OperationResult{}, policyErrorf("operation %s: %v", opID, err)
	}
	if !pathAllowed(canonical, allow) {
		return domain.OperationResult{}, policyErrorf("path %s is not in the permitted allowlist", canonical)
	}

	// Idempotent replay: an executed lineage returns its cached result.
	if current.Status == domain.OpExecuted && current.Result != nil && current.Result.Outcome == "success" {
		return *current.Result, nil
	}
	if ledger.TerminalStatus(current.Status) {
		return domain.OperationResult{}, policyErrorf("operation %s is %s; propose a new operation to retry", opID, current.Status)
	}

	data, readErr := c.readFile(filepath.Join(c.Root, filepath.FromSlash(strings.TrimPrefix(canonical, "/"))))
	if readErr != nil {
		result := domain.OperationResult{
			CompletedAt: c.now().UTC().Format(time.RFC3339),
			Outcome:     "failure",
			Error:       readErr.Error(),
		}
		if _, appendErr := c.Ledger.UpdateStatus(ctx, current.ID, ledger.StatusPatch{Status: domain.OpFailed, Result: &result}); appendErr != nil {
			return domain.OperationResult{}, fmt.Errorf("record failed attempt for %s: %w", opID, appendErr)
		}
		return domain.OperationResult{}, fmt.Errorf("read %s: %w", canonical, readErr)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	encoding := spec.Encoding
	if encoding == "" {
		encoding = "utf-8"
	}
	payload := map[string]any{
		"path":        canonical,
		"encoding":    encoding,
		"byte_length": len(data),
		"hash":        hash,
	}
	if len(data) < c.inlineCap() {
		payload["content"] = string(data)
	} else {
		payload["content_omitted"] = true
		payload["preview"] = preview(string(data), c.previewChars())
	}
	result := domain.OperationResult{
		CompletedAt:    c.now().UTC().Format(time.RFC3339),
		Outcome:        "success",
		Data:           payload,
		AppendOnlyHash: hash,
	}
	if _, err := c.Ledger.UpdateStatus(ctx, current.ID, ledger.StatusPatch{Status: domain.OpExecuted, Result: &result}); err != nil {
		return domain.OperationResult{}, fmt.Errorf("record execution for %s: %w", opID, err)
	}
	return result, nil
}

func (c Conduit) isRecognizedReader(name string) bool {
	for _, reader := range c.readers() {
		if strings.EqualFold(reader, name) {
			return true
		}
	}
	return false
}

func preview(s string, chars int) string {
	runes := []rune(s)
	if len(runes) <= chars {
		return s
	}
	return string(runes[:chars]) + "…"
}
