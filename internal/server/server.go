// Package server exposes the lifecycle engine over HTTP with a huma-generated
// OpenAPI surface. Every error leaves as the {code,message,details} envelope.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"questlog/internal/domain"
	"questlog/internal/engine"
	"questlog/internal/quest"
	"questlog/internal/repo"
	"questlog/internal/report"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"outside_window"`
	Message string         `json:"message" example:"weekly report only accepted during the eligibility window"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Questlog API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
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
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Questlog API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerWorkspaces(group, cfg.Engine)
	registerMembers(group, cfg.Engine)
	registerInvitations(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerQuests(group, cfg.Engine)
	registerDashboard(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps the engine's typed errors onto envelope codes.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var forbidden *engine.ForbiddenError
	if errors.As(err, &forbidden) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"actor_id": forbidden.ActorID})
	}
	var rv *report.ValidationError
	if errors.As(err, &rv) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"field": rv.Field})
	}
	var qv *quest.ValidationError
	if errors.As(err, &qv) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"field": qv.Field})
	}
	var dep *report.DependencyError
	if errors.As(err, &dep) {
		return newAPIError(http.StatusConflict, "dependency_missing", err.Error(), map[string]any{"missing": dep.Missing})
	}
	var dup *report.AlreadySubmittedError
	if errors.As(err, &dup) {
		return newAPIError(http.StatusConflict, "already_submitted", err.Error(), map[string]any{"kind": dup.Kind, "period": dup.Period})
	}
	var done *report.AlreadyCompletedError
	if errors.As(err, &done) {
		return newAPIError(http.StatusConflict, "already_completed", err.Error(), map[string]any{"day": done.Day})
	}
	var window *report.OutsideWindowError
	if errors.As(err, &window) {
		return newAPIError(http.StatusConflict, "outside_window", err.Error(), map[string]any{"next_eligible": window.NextEligible.Format("2006-01-02")})
	}
	var illegal *quest.IllegalTransitionError
	if errors.As(err, &illegal) {
		return newAPIError(http.StatusConflict, "illegal_transition", err.Error(), map[string]any{
			"role": string(illegal.Role),
			"from": illegal.From,
			"to":   illegal.To,
		})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "revoked"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	case strings.Contains(lowered, "is not a member") || strings.Contains(lowered, "invitation is") || strings.Contains(lowered, "expired"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
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

func bodyBytes(ctx context.Context) []byte {
	if b, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return b
	}
	return nil
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
	open := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
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
    <title>Questlog API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
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

func registerWorkspaces(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-workspace",
		Method:        http.MethodPost,
		Path:          "/workspaces",
		Summary:       "Create workspace",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkspaceRequest `json:"body"`
	}) (*struct {
		Body domain.Workspace `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 || input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		desc := ""
		if input.Body.Description != nil {
			desc = *input.Body.Description
		}
		w, err := e.InitWorkspace(ctx, input.Body.ID, input.Body.Name, desc, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workspace `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-workspaces",
		Method:      http.MethodGet,
		Path:        "/workspaces",
		Summary:     "List workspaces",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Workspace `json:"body"`
	}, error) {
		items, err := e.Repo.ListWorkspaces(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Workspace `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-workspace",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}",
		Summary:     "Get workspace",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
	}) (*struct {
		Body domain.Workspace `json:"body"`
	}, error) {
		w, err := e.Repo.GetWorkspace(ctx, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workspace `json:"body"`
		}{Body: w}, nil
	})
}

func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/members",
		Summary:     "List workspace members",
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
	}) (*struct {
		Body []domain.Membership `json:"body"`
	}, error) {
		items, err := e.Repo.ListMemberships(ctx, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Membership `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-member",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/members",
		Summary:       "Add member directly",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string           `path:"workspace_id"`
		Body        AddMemberRequest `json:"body"`
	}) (*struct {
		Body domain.Membership `json:"body"`
	}, error) {
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AddMember(ctx, input.WorkspaceID, input.Body.ActorID, input.Body.Role, input.Body.Position, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Membership `json:"body"`
		}{Body: m}, nil
	})
}

func registerInvitations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-invitation",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/invitations",
		Summary:       "Invite a future member",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string                  `path:"workspace_id"`
		Body        CreateInvitationRequest `json:"body"`
	}) (*struct {
		Body domain.Invitation `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inv, err := e.CreateInvitation(ctx, input.WorkspaceID, input.Body.Email, input.Body.Role, input.Body.Position, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Invitation `json:"body"`
		}{Body: inv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-invitations",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/invitations",
		Summary:     "List invitations",
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Status      string `query:"status" enum:"pending,accepted,cancelled,expired"`
	}) (*struct {
		Body []domain.Invitation `json:"body"`
	}, error) {
		items, err := e.Repo.ListInvitations(ctx, input.WorkspaceID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Invitation `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-invitation",
		Method:      http.MethodPost,
		Path:        "/invitations/{invitation_id}/accept",
		Summary:     "Accept an invitation",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		InvitationID string `path:"invitation_id"`
	}) (*struct {
		Body domain.Membership `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AcceptInvitation(ctx, input.InvitationID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Membership `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-invitation",
		Method:      http.MethodDelete,
		Path:        "/invitations/{invitation_id}",
		Summary:     "Cancel a pending invitation",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		InvitationID string `path:"invitation_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.CancelInvitation(ctx, input.InvitationID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "daily-eligibility",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/reports/daily/eligibility",
		Summary:     "Check daily report eligibility",
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
	}) (*struct {
		Body EligibilityResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.ResolveDaily(ctx, input.WorkspaceID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EligibilityResponse `json:"body"`
		}{Body: eligibilityResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "submit-daily",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/reports/daily",
		Summary:       "Submit the morning report",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string             `path:"workspace_id"`
		Body        SubmitDailyRequest `json:"body"`
	}) (*struct {
		Body domain.DailyReport `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.SubmitDaily(ctx, input.WorkspaceID, report.DailyInput{
			UserID:             actorID,
			WakeUpTime:         input.Body.WakeUpTime,
			MorningMood:        input.Body.MorningMood,
			MorningRoutine:     input.Body.MorningRoutine,
			Goals:              input.Body.Goals,
			ExpectedActivities: activities(input.Body.ExpectedActivities),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DailyReport `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "end-of-day-eligibility",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/reports/daily/complete/eligibility",
		Summary:     "Check end-of-day eligibility",
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
	}) (*struct {
		Body EligibilityResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.ResolveEndOfDay(ctx, input.WorkspaceID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EligibilityResponse `json:"body"`
		}{Body: eligibilityResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-daily",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/reports/daily/complete",
		Summary:     "Submit the end-of-day update",
		Errors:      []int{http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string               `path:"workspace_id"`
		Body        CompleteDailyRequest `json:"body"`
	}) (*struct {
		Body domain.DailyReport `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.SubmitEndOfDay(ctx, input.WorkspaceID, actorID, report.EndOfDayInput{
			EveningMood:      input.Body.EveningMood,
			Completions:      completions(input.Body.Completions),
			ActualActivities: activities(input.Body.ActualActivities),
			Insights:         input.Body.Insights,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DailyReport `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "weekly-eligibility",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/reports/weekly/eligibility",
		Summary:     "Check weekly report eligibility",
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
	}) (*struct {
		Body EligibilityResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.ResolveWeekly(ctx, input.WorkspaceID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EligibilityResponse `json:"body"`
		}{Body: eligibilityResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "submit-weekly",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/reports/weekly",
		Summary:       "Submit the weekly reflection",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string              `path:"workspace_id"`
		Body        SubmitWeeklyRequest `json:"body"`
	}) (*struct {
		Body domain.WeeklyReport `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.SubmitWeekly(ctx, input.WorkspaceID, weeklyInput(actorID, input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WeeklyReport `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-daily-reports",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/reports/daily",
		Summary:     "List daily reports",
	}, func(ctx context.Context, input *struct {
		WorkspaceID     string `path:"workspace_id"`
		UserID          string `query:"user_id"`
		From            string `query:"from" format:"date"`
		To              string `query:"to" format:"date"`
		Limit           int    `query:"limit" minimum:"0" maximum:"500"`
		CursorCreatedAt string `query:"cursor_created_at"`
		CursorID        string `query:"cursor_id"`
	}) (*struct {
		Body []domain.DailyReport `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		userID := input.UserID
		if userID == "" {
			userID = actorID
		}
		items, err := e.ReportHistory(ctx, input.WorkspaceID, repo.DailyReportFilters{
			UserID:          userID,
			FromDay:         input.From,
			ToDay:           input.To,
			Limit:           input.Limit,
			CursorCreatedAt: input.CursorCreatedAt,
			CursorID:        input.CursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.DailyReport `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-weekly-reports",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/reports/weekly",
		Summary:     "List weekly reports",
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		UserID      string `query:"user_id"`
		Limit       int    `query:"limit" minimum:"0" maximum:"500"`
	}) (*struct {
		Body []domain.WeeklyReport `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		userID := input.UserID
		if userID == "" {
			userID = actorID
		}
		items, err := e.Repo.ListWeeklyReports(ctx, input.WorkspaceID, userID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.WeeklyReport `json:"body"`
		}{Body: items}, nil
	})
}

func registerQuests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/tasks",
		Summary:       "Create a quest task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string            `path:"workspace_id"`
		Body        CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.QuestTask `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			WorkspaceID: input.WorkspaceID,
			Title:       input.Body.Title,
			Category:    input.Body.Category,
			Reward:      input.Body.Reward,
			Positions:   input.Body.Positions,
			Global:      input.Body.Global,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.QuestTask `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/tasks",
		Summary:     "List quest tasks",
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Global      bool   `query:"global"`
	}) (*struct {
		Body []domain.QuestTask `json:"body"`
	}, error) {
		items, err := e.Repo.ListQuestTasks(ctx, input.WorkspaceID, input.Global)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.QuestTask `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/tasks/{task_id}",
		Summary:     "Get a quest task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		TaskID      string `path:"task_id"`
	}) (*struct {
		Body domain.QuestTask `json:"body"`
	}, error) {
		t, err := e.Repo.GetQuestTask(ctx, input.WorkspaceID, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.QuestTask `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "assign-task",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/tasks/{task_id}/assign",
		Summary:       "Assign a task to a member",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string            `path:"workspace_id"`
		TaskID      string            `path:"task_id"`
		Body        AssignTaskRequest `json:"body"`
	}) (*struct {
		Body domain.TaskAssignment `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AssignTask(ctx, input.WorkspaceID, input.Body.UserID, input.TaskID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskAssignment `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-assignment",
		Method:      http.MethodDelete,
		Path:        "/workspaces/{workspace_id}/users/{user_id}/quests/{task_id}",
		Summary:     "Revoke an assignment",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		UserID      string `path:"user_id"`
		TaskID      string `path:"task_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeAssignment(ctx, input.WorkspaceID, input.UserID, input.TaskID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-user-quests",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/users/{user_id}/quests",
		Summary:     "List a member's quest assignments",
	}, func(ctx context.Context, input *struct {
		WorkspaceID    string `path:"workspace_id"`
		UserID         string `path:"user_id"`
		IncludeRevoked bool   `query:"include_revoked"`
	}) (*struct {
		Body []domain.TaskAssignment `json:"body"`
	}, error) {
		items, err := e.UserQuests(ctx, input.WorkspaceID, input.UserID, input.IncludeRevoked)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TaskAssignment `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-quest-status",
		Method:      http.MethodPatch,
		Path:        "/workspaces/{workspace_id}/users/{user_id}/quests/{task_id}",
		Summary:     "Change assignment status",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string                `path:"workspace_id"`
		UserID      string                `path:"user_id"`
		TaskID      string                `path:"task_id"`
		Body        SetQuestStatusRequest `json:"body"`
	}) (*struct {
		Body domain.TaskAssignment `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.ChangeTaskStatus(ctx, input.WorkspaceID, input.UserID, input.TaskID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskAssignment `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-quest-comment",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/users/{user_id}/quests/{task_id}/comments",
		Summary:       "Comment on an assignment",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string            `path:"workspace_id"`
		UserID      string            `path:"user_id"`
		TaskID      string            `path:"task_id"`
		Body        AddCommentRequest `json:"body"`
	}) (*struct {
		Body domain.TaskComment `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AddTaskComment(ctx, input.WorkspaceID, input.UserID, input.TaskID, input.Body.Text, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskComment `json:"body"`
		}{Body: c}, nil
	})
}

func registerDashboard(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "user-dashboard",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/users/{user_id}/dashboard",
		Summary:     "Weekly progress dashboard",
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		UserID      string `path:"user_id"`
	}) (*struct {
		Body engine.Dashboard `json:"body"`
	}, error) {
		d, err := e.UserDashboard(ctx, input.WorkspaceID, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Dashboard `json:"body"`
		}{Body: d}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/events",
		Summary:     "Tail the event log",
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Type        string `query:"type"`
		EntityKind  string `query:"entity_kind"`
		EntityID    string `query:"entity_id"`
		Limit       int    `query:"limit" minimum:"0" maximum:"500"`
		Cursor      int64  `query:"cursor"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit, input.Cursor, input.WorkspaceID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if !authCfg.EnableDevLogin {
			return nil, newAPIError(http.StatusNotFound, "not_found", "dev login disabled", nil)
		}
		if strings.TrimSpace(input.Body.ActorID) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		if strings.TrimSpace(authCfg.JWTSecret) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "jwt secret not configured", nil)
		}
		claims := jwtClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   input.Body.ActorID,
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(authCfg.JWTSecret))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}
