// Package graphql serves the small GraphQL surface the LIFF web view uses to
// confirm that its hand-off token still belongs to the user's live session.
package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/txn2/factcheck-bot/pkg/auth"
)

const maxBodyBytes = 64 << 10

const msgInternal = "Internal server error"

// Request is a GraphQL POST body.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Response is a GraphQL response body. Data is serialized as null when unset.
type Response struct {
	Data   map[string]any `json:"data"`
	Errors []Error        `json:"errors,omitempty"`
}

// Error is a GraphQL error entry.
type Error struct {
	Message string `json:"message"`
}

// Handler answers the context query:
//
//	query CheckSessionId { context { data { sessionId } } }
type Handler struct {
	auth   auth.Authenticator
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(authenticator auth.Authenticator, logger *slog.Logger) (*Handler, error) {
	if authenticator == nil {
		return nil, fmt.Errorf("graphql handler requires an authenticator")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{auth: authenticator, logger: logger}, nil
}

// ServeHTTP implements http.Handler. Request-level failures use HTTP 400;
// everything else, authentication included, is HTTP 200 with errors.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, Response{Errors: []Error{{Message: "POST required"}}})
		return
	}

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Errors: []Error{{Message: "invalid request body"}}})
		return
	}

	sels, err := parseQuery(req.Query)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Errors: []Error{{Message: err.Error()}}})
		return
	}

	writeJSON(w, http.StatusOK, h.execute(r.Context(), sels))
}

func (h *Handler) execute(ctx context.Context, sels []*selection) Response {
	data := make(map[string]any, len(sels))
	for _, s := range sels {
		switch s.name {
		case "context":
			v, gqlErr := h.resolveContext(ctx, s)
			if gqlErr != nil {
				return Response{Errors: []Error{*gqlErr}}
			}
			data["context"] = v
		case "__typename":
			data["__typename"] = "Query"
		default:
			return Response{Errors: []Error{unknownField(s.name, "Query")}}
		}
	}
	return Response{Data: data}
}

func (h *Handler) resolveContext(ctx context.Context, s *selection) (map[string]any, *Error) {
	id, err := h.auth.Authenticate(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidAuthHeader) {
			h.logger.DebugContext(ctx, "rejected session query", "error", err)
			return nil, &Error{Message: auth.InvalidAuthMessage}
		}
		h.logger.ErrorContext(ctx, "session query failed", "error", err)
		return nil, &Error{Message: msgInternal}
	}
	if len(s.children) == 0 {
		return nil, &Error{Message: `Field "context" of type "UserContext" must have a selection of subfields.`}
	}

	live := id.Session
	out := make(map[string]any, len(s.children))
	for _, c := range s.children {
		switch c.name {
		case "state":
			out["state"] = live.State
		case "issuedAt":
			out["issuedAt"] = live.IssuedAt.UTC().Format(time.RFC3339)
		case "data":
			v, gqlErr := resolveData(id, c)
			if gqlErr != nil {
				return nil, gqlErr
			}
			out["data"] = v
		default:
			e := unknownField(c.name, "UserContext")
			return nil, &e
		}
	}
	return out, nil
}

func resolveData(id *auth.Identity, s *selection) (map[string]any, *Error) {
	if len(s.children) == 0 {
		return nil, &Error{Message: `Field "data" of type "UserContextData" must have a selection of subfields.`}
	}
	out := make(map[string]any, len(s.children))
	for _, c := range s.children {
		switch c.name {
		case "sessionId":
			out["sessionId"] = id.SessionID
		case "state":
			out["state"] = id.Session.State
		case "searchedText":
			if v, ok := id.Session.Data["searchedText"].(string); ok {
				out["searchedText"] = v
			} else {
				out["searchedText"] = nil
			}
		default:
			e := unknownField(c.name, "UserContextData")
			return nil, &e
		}
	}
	return out, nil
}

func unknownField(field, typ string) Error {
	return Error{Message: fmt.Sprintf("Cannot query field %q on type %q.", field, typ)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
