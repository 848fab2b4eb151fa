package governance

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/textgate/textgate/internal/api"
	"github.com/textgate/textgate/internal/auth"
	"github.com/textgate/textgate/internal/governance/audit"
)

// AuditLister is satisfied by *audit.Repository.
type AuditLister interface {
	ListByOwner(ctx context.Context, ownerUserID uuid.UUID, params audit.Filter) ([]audit.Record, int64, error)
}

// Handler provides HTTP handlers for governance endpoints.
type Handler struct {
	audits AuditLister
}

func NewHandler(audits AuditLister) *Handler {
	return &Handler{audits: audits}
}

// ListAuditLogs returns paginated audit logs for the authenticated user.
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	params := parseAuditParams(r)

	logs, total, err := h.audits.ListByOwner(r.Context(), user.ID, params)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer.Wrap(err))
		return
	}

	api.JSONPaginated(w, http.StatusOK, logs, total, params.Page, params.PageSize)
}

func parseAuditParams(r *http.Request) audit.Filter {
	params := audit.NewFilter()
	q := r.URL.Query()

	if et := q.Get("event_type"); et != "" {
		params.EventType = et
	}
	if sev := q.Get("severity"); sev != "" {
		params.Severity = sev
	}
	if rt := q.Get("resource_type"); rt != "" {
		params.ResourceType = rt
	}
	if p := q.Get("page"); p != "" {
		if page, err := strconv.Atoi(p); err == nil && page > 0 {
			params.Page = page
		}
	}
	if ps := q.Get("page_size"); ps != "" {
		if pageSize, err := strconv.Atoi(ps); err == nil && pageSize > 0 && pageSize <= audit.MaxPageSize {
			params.PageSize = pageSize
		}
	}
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			params.From = &t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			params.To = &t
		}
	}

	return params
}
