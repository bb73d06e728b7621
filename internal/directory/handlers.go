package directory

import (
	"net/http"
	"strconv"

	"github.com/arenahq/orgcore/internal/apperrors"
)

// HandleSearch handles GET /api/v1/directory/candidates
func HandleSearch(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		query := Query{
			Term:   q.Get("term"),
			Cursor: q.Get("cursor"),
		}
		if raw := q.Get("page"); raw != "" {
			page, err := strconv.Atoi(raw)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "page must be an integer")
				return
			}
			query.Page = page
		}
		if raw := q.Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "limit must be an integer")
				return
			}
			query.PageSize = limit
		}
		// Org members are left out unless has_org is true or "any".
		if raw := q.Get("has_org"); raw == "any" {
			query.IncludeMembers = true
		} else if raw != "" {
			hasOrg, err := strconv.ParseBool(raw)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "has_org must be true, false or any")
				return
			}
			query.HasOrg = &hasOrg
		}

		page, err := s.Search(r.Context(), query)
		if err != nil {
			apperrors.WriteAppError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, page)
	}
}
