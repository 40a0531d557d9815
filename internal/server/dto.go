package server

import "aegis/internal/domain"

type CreateArtifactRequest struct {
	ID           string   `json:"id" example:"ART-rollout"`
	Title        string   `json:"title,omitempty"`
	DomainTags   []string `json:"domain_tags,omitempty"`
	IsHighImpact bool     `json:"is_high_impact,omitempty"`
	HasTension   bool     `json:"has_tension,omitempty"`
}

type CreatePeerRequest struct {
	ID          string   `json:"id" example:"ada"`
	Type        string   `json:"type,omitempty" enum:"human,ai"`
	DisplayName string   `json:"display_name,omitempty"`
	Domains     []string `json:"domains,omitempty"`
}

type CreateLensRequest struct {
	ID          string   `json:"id" example:"Security Review"`
	Domains     []string `json:"domains,omitempty"`
	AutoReview  bool     `json:"auto_review,omitempty"`
	Description string   `json:"description,omitempty"`
}

type AppendEventRequest struct {
	Type      string `json:"type" example:"awareness_ack"`
	PeerID    string `json:"peer_id,omitempty"`
	LensID    string `json:"lens_id,omitempty"`
	Rationale string `json:"rationale,omitempty"`
}

type ProposeOperationRequest struct {
	ToolID    string   `json:"tool_id" example:"tool-read"`
	ToolName  string   `json:"tool_name" example:"read_file"`
	Intent    string   `json:"intent,omitempty"`
	Scope     []string `json:"scope,omitempty"`
	Allow     []string `json:"allow,omitempty"`
	Rationale string   `json:"rationale,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

type AcceptOperationRequest struct {
	Parameters map[string]any `json:"parameters,omitempty"`
}

type ExecuteOperationRequest struct {
	Path     string `json:"path" example:"docs/plan.md"`
	Encoding string `json:"encoding,omitempty"`
}

type PostBoardMessageRequest struct {
	PeerID string `json:"peer_id"`
	Body   string `json:"body"`
}

type LockResponse struct {
	Locked bool                           `json:"locked"`
	Ledger domain.PeerConsiderationLedger `json:"ledger"`
}

type OperationListResponse struct {
	Operations []domain.GovernedOperation `json:"operations"`
}

type EventListResponse struct {
	Events []domain.GovernanceEvent `json:"events"`
}

type SessionListResponse struct {
	Sessions []domain.Session `json:"sessions"`
}

type BoardListResponse struct {
	Messages []domain.BoardMessage `json:"messages"`
}
