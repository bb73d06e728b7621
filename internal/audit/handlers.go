package audit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/arenahq/orgcore/internal/apperrors"
	"github.com/arenahq/orgcore/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Authorizer decides whether a user may read an organization's trail.
type Authorizer interface {
	CanViewAudit(ctx context.Context, actorID, orgID uuid.UUID) error
}

// HandleList handles GET /api/v1/orgs/{org_id}/audit
func HandleList(authz Authorizer, lister Lister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "org_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		if err := authz.CanViewAudit(ctx, userID, orgID); err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		params := ListParams{OrgID: orgID}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				params.Limit = v
			}
		}
		if raw := r.URL.Query().Get("before"); raw != "" {
			before, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "before must be an RFC 3339 timestamp")
				return
			}
			params.Before = &before
		}

		entries, err := lister.ListByOrg(ctx, params)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list audit log")
			apperrors.WriteInternalError(w, r, "Failed to list audit log")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"events": entries,
		})
	}
}
