package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"spndr/internal/core"
	"spndr/internal/log"
	"spndr/internal/storage"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"message":   "Server is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks the database before reporting ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ping == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.ping(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "not_ready",
			"database": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "database": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	txs, err := s.svc.List(r.Context(), filter)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(txs).Write(w)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError("Invalid request body").Write(w)
		return
	}

	tx, err := req.toTransaction()
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}

	created, err := s.svc.Create(r.Context(), tx)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(created).Write(w)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var patch core.TransactionPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		BadRequestError("Invalid request body").Write(w)
		return
	}
	if patch.IsEmpty() {
		BadRequestError("No fields to update").Write(w)
		return
	}
	if patch.Title != nil {
		t := sanitizeInput(*patch.Title)
		patch.Title = &t
	}
	if patch.Category != nil {
		c := sanitizeInput(*patch.Category)
		patch.Category = &c
	}

	updated, err := s.svc.Update(r.Context(), id, patch)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Data(updated).Write(w)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Message("Transaction deleted successfully").Write(w)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Clear(r.Context())
	if err != nil {
		s.fail(w, r, log.OpClearAll, err)
		return
	}
	NewJSONResponse().Message("All transactions cleared").Data(map[string]int64{"deleted": n}).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Summary(r.Context(), strings.TrimSpace(r.URL.Query().Get("user_id")))
	if err != nil {
		s.fail(w, r, log.OpSummary, err)
		return
	}
	NewJSONResponse().Data(summary).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	top, err := parseTop(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	cats, err := s.svc.Categories(r.Context(), strings.TrimSpace(r.URL.Query().Get("user_id")), top)
	if err != nil {
		s.fail(w, r, log.OpSummary, err)
		return
	}
	NewJSONResponse().Data(cats).Write(w)
}

// fail maps service errors onto status codes. Only unexpected errors are
// logged at error level.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		NotFoundError("Transaction not found").Write(w)
	case errors.Is(err, storage.ErrInvalidID):
		BadRequestError("Invalid transaction ID").Write(w)
	case isValidationError(err):
		BadRequestError(validationMessage(err)).Write(w)
	default:
		log.FromContext(r.Context()).Failure(r.Context(), "Request failed", op, err)
		InternalServerError("Internal server error").Write(w)
	}
}

// validationMessage returns the innermost sentinel's text so clients see
// "empty title" rather than the wrapping chain.
func validationMessage(err error) string {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
