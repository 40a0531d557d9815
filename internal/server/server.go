// Package server exposes the governance engine over HTTP with huma on chi.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"aegis/internal/conduit"
	"aegis/internal/domain"
	"aegis/internal/engine"
	"aegis/internal/ledger"
	"aegis/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"lock_refused"`
	Message string         `json:"message" example:"artifact is not lock-eligible"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the uniform error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the AEGIS API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("AEGIS API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerOpenAPI(router, api, basePath)
	registerHealth(group)
	registerArtifacts(group, cfg.Engine)
	registerPeers(group, cfg.Engine)
	registerLenses(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOperations(group, cfg.Engine)
	registerSessions(group, cfg.Engine)
	registerBoard(group, cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body:   apiErrorBody{Code: code, Message: message, Details: details},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	var le engine.LockError
	if errors.As(err, &le) {
		return newAPIError(http.StatusConflict, "lock_refused", err.Error(), map[string]any{"reasons": le.Reasons})
	}
	var pe conduit.PolicyError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusForbidden, "policy_violation", err.Error(), nil)
	}
	var te ledger.TerminalStatusError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "not found"):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case strings.Contains(lowered, "locked"), strings.Contains(lowered, "already exists"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>AEGIS API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type ArtifactPath struct {
	ArtifactID string `path:"artifact_id"`
}

func registerArtifacts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-artifact",
		Method:        http.MethodPost,
		Path:          "/artifacts",
		Summary:       "Register deliberation artifact",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateArtifactRequest `json:"body"`
	}) (*struct {
		Body domain.Artifact `json:"body"`
	}, error) {
		if err := requirePermission(ctx, "artifact.create"); err != nil {
			return nil, handleError(err)
		}
		a, err := e.RegisterArtifact(ctx, input.Body.ID, input.Body.Title, input.Body.DomainTags, input.Body.IsHighImpact, input.Body.HasTension)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Artifact `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-artifact",
		Method:      http.MethodGet,
		Path:        "/artifacts/{artifact_id}",
		Summary:     "Get artifact",
	}, func(ctx context.Context, input *ArtifactPath) (*struct {
		Body domain.Artifact `json:"body"`
	}, error) {
		a, err := e.Repo.GetArtifact(ctx, input.ArtifactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Artifact `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-inclusion",
		Method:      http.MethodGet,
		Path:        "/artifacts/{artifact_id}/inclusion",
		Summary:     "Recompute inclusion snapshot",
	}, func(ctx context.Context, input *ArtifactPath) (*struct {
		Body domain.InclusionState `json:"body"`
	}, error) {
		state, err := e.InclusionFor(ctx, input.ArtifactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.InclusionState `json:"body"`
		}{Body: state}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "lock-artifact",
		Method:      http.MethodPost,
		Path:        "/artifacts/{artifact_id}/lock",
		Summary:     "Lock artifact when inclusion allows it",
		Errors:      []int{http.StatusConflict, http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *ArtifactPath) (*struct {
		Body LockResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, "artifact.lock"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		snap, err := e.LockArtifact(ctx, input.ArtifactID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LockResponse `json:"body"`
		}{Body: LockResponse{Locked: true, Ledger: snap}}, nil
	})
}

func registerPeers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-peer",
		Method:        http.MethodPost,
		Path:          "/peers",
		Summary:       "Register peer",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreatePeerRequest `json:"body"`
	}) (*struct {
		Body domain.Peer `json:"body"`
	}, error) {
		if err := requirePermission(ctx, "peer.create"); err != nil {
			return nil, handleError(err)
		}
		p, err := e.RegisterPeer(ctx, input.Body.ID, input.Body.Type, input.Body.DisplayName, input.Body.Domains)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Peer `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-peers",
		Method:      http.MethodGet,
		Path:        "/peers",
		Summary:     "List peers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Peer `json:"body"`
	}, error) {
		peers, err := e.Repo.ListPeers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Peer `json:"body"`
		}{Body: peers}, nil
	})
}

func registerLenses(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-lens",
		Method:        http.MethodPost,
		Path:          "/lenses",
		Summary:       "Register lens",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateLensRequest `json:"body"`
	}) (*struct {
		Body domain.Lens `json:"body"`
	}, error) {
		if err := requirePermission(ctx, "lens.create"); err != nil {
			return nil, handleError(err)
		}
		l, err := e.RegisterLens(ctx, input.Body.ID, input.Body.Domains, input.Body.AutoReview, input.Body.Description)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Lens `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-lenses",
		Method:      http.MethodGet,
		Path:        "/lenses",
		Summary:     "List lenses",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Lens `json:"body"`
	}, error) {
		lenses, err := e.Repo.ListLenses(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Lens `json:"body"`
		}{Body: lenses}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "append-event",
		Method:        http.MethodPost,
		Path:          "/artifacts/{artifact_id}/events",
		Summary:       "Append governance event",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ArtifactPath
		Body AppendEventRequest `json:"body"`
	}) (*struct {
		Body domain.GovernanceEvent `json:"body"`
	}, error) {
		if err := requirePermission(ctx, "event.append"); err != nil {
			return nil, handleError(err)
		}
		ev, err := e.AppendGovernanceEvent(ctx, domain.GovernanceEvent{
			ArtifactID: input.ArtifactID,
			Type:       domain.EventType(input.Body.Type),
			PeerID:     input.Body.PeerID,
			LensID:     input.Body.LensID,
			Rationale:  input.Body.Rationale,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.GovernanceEvent `json:"body"`
		}{Body: ev}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/artifacts/{artifact_id}/events",
		Summary:     "List governance events in insertion order",
	}, func(ctx context.Context, input *ArtifactPath) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		evs, err := e.Events.ListForArtifact(ctx, input.ArtifactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: EventListResponse{Events: evs}}, nil
	})
}

type OpPath struct {
	OpID string `path:"op_id"`
}

func registerOperations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "propose-operation",
		Method:        http.MethodPost,
		Path:          "/artifacts/{artifact_id}/operations",
		Summary:       "Propose governed read-only tool call",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ArtifactPath
		Body ProposeOperationRequest `json:"body"`
	}) (*struct {
		Body domain.GovernedOperation `json:"body"`
	}, error) {
		if err := requirePermission(ctx, "operation.propose"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		op, err := e.ProposeOperation(ctx, conduit.ProposeParams{
			ArtifactID: input.ArtifactID,
			ToolID:     input.Body.ToolID,
			ToolName:   input.Body.ToolName,
			Intent:     input.Body.Intent,
			Scope:      input.Body.Scope,
			Allow:      input.Body.Allow,
			Rationale:  input.Body.Rationale,
			SessionID:  input.Body.SessionID,
			PeerID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.GovernedOperation `json:"body"`
		}{Body: op}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-operations",
		Method:      http.MethodGet,
		Path:        "/artifacts/{artifact_id}/operations",
		Summary:     "List current operation states",
	}, func(ctx context.Context, input *ArtifactPath) (*struct {
		Body OperationListResponse `json:"body"`
	}, error) {
		heads, err := e.OperationHeads(ctx, input.ArtifactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OperationListResponse `json:"body"`
		}{Body: OperationListResponse{Operations: heads}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-operation",
		Method:      http.MethodPost,
		Path:        "/operations/{op_id}/accept",
		Summary:     "Accept an execution request",
	}, func(ctx context.Context, input *struct {
		OpPath
		Body AcceptOperationRequest `json:"body"`
	}) (*struct {
		Body domain.GovernedOperation `json:"body"`
	}, error) {
		if err := requirePermission(ctx, "operation.accept"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		op, err := e.AcceptOperation(ctx, input.OpID, actorID, input.Body.Parameters)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.GovernedOperation `json:"body"`
		}{Body: op}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-operation",
		Method:      http.MethodPost,
		Path:        "/operations/{op_id}/reject",
		Summary:     "Reject an operation",
	}, func(ctx context.Context, input *struct {
		OpPath
	}) (*struct {
		Body domain.GovernedOperation `json:"body"`
	}, error) {
		if err := requirePermission(ctx, "operation.accept"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		op, err := e.RejectOperation(ctx, input.OpID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.GovernedOperation `json:"body"`
		}{Body: op}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "execute-operation",
		Method:      http.MethodPost,
		Path:        "/operations/{op_id}/execute",
		Summary:     "Execute a governed read-only tool call",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OpPath
		Body ExecuteOperationRequest `json:"body"`
	}) (*struct {
		Body domain.OperationResult `json:"body"`
	}, error) {
		if err := requirePermission(ctx, "operation.execute"); err != nil {
			return nil, handleError(err)
		}
		res, err := e.ExecuteOperation(ctx, input.OpID, conduit.ReadSpec{
			Path:     input.Body.Path,
			Encoding: input.Body.Encoding,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OperationResult `json:"body"`
		}{Body: res}, nil
	})
}

type SessionPath struct {
	SessionID string `path:"session_id"`
}

func registerSessions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/artifacts/{artifact_id}/sessions",
		Summary:       "Create deliberation session",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *ArtifactPath) (*struct {
		Body domain.Session `json:"body"`
	}, error) {
		if err := requirePermission(ctx, "session.manage"); err != nil {
			return nil, handleError(err)
		}
		s, err := e.CreateSession(ctx, input.ArtifactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Session `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/artifacts/{artifact_id}/sessions",
		Summary:     "List sessions",
	}, func(ctx context.Context, input *ArtifactPath) (*struct {
		Body SessionListResponse `json:"body"`
	}, error) {
		if _, err := e.SweepAbandoned(ctx); err != nil {
			return nil, handleError(err)
		}
		sessions, err := e.Repo.ListSessions(ctx, input.ArtifactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SessionListResponse `json:"body"`
		}{Body: SessionListResponse{Sessions: sessions}}, nil
	})

	type sessionAction struct {
		SessionPath
	}
	register := func(opID, pathSuffix, summary string, act func(context.Context, string) (domain.Session, error)) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/sessions/{session_id}/" + pathSuffix,
			Summary:     summary,
		}, func(ctx context.Context, input *sessionAction) (*struct {
			Body domain.Session `json:"body"`
		}, error) {
			if err := requirePermission(ctx, "session.manage"); err != nil {
				return nil, handleError(err)
			}
			s, err := act(ctx, input.SessionID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body domain.Session `json:"body"`
			}{Body: s}, nil
		})
	}
	register("start-session", "start", "Start session", e.StartSession)
	register("close-session", "close", "Close session", e.CloseSession)
	register("touch-session", "touch", "Record session activity", e.TouchSession)

	huma.Register(api, huma.Operation{
		OperationID: "join-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/join",
		Summary:     "Join session",
	}, func(ctx context.Context, input *struct {
		SessionPath
		Body struct {
			PeerID string `json:"peer_id"`
		} `json:"body"`
	}) (*struct {
		Body domain.Session `json:"body"`
	}, error) {
		if err := requirePermission(ctx, "session.manage"); err != nil {
			return nil, handleError(err)
		}
		s, err := e.JoinSession(ctx, input.SessionID, input.Body.PeerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Session `json:"body"`
		}{Body: s}, nil
	})
}

func registerBoard(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "post-board-message",
		Method:        http.MethodPost,
		Path:          "/artifacts/{artifact_id}/board",
		Summary:       "Post deliberation board message",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ArtifactPath
		Body PostBoardMessageRequest `json:"body"`
	}) (*struct {
		Body domain.BoardMessage `json:"body"`
	}, error) {
		if err := requirePermission(ctx, "board.post"); err != nil {
			return nil, handleError(err)
		}
		m, err := e.PostBoardMessage(ctx, input.ArtifactID, input.Body.PeerID, input.Body.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.BoardMessage `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-board-messages",
		Method:      http.MethodGet,
		Path:        "/artifacts/{artifact_id}/board",
		Summary:     "List board messages",
	}, func(ctx context.Context, input *ArtifactPath) (*struct {
		Body BoardListResponse `json:"body"`
	}, error) {
		msgs, err := e.Repo.ListBoardMessages(ctx, input.ArtifactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BoardListResponse `json:"body"`
		}{Body: BoardListResponse{Messages: msgs}}, nil
	})
}
