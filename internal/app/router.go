package app

import (
	"net/http"

	"github.com/arenahq/orgcore/internal/apperrors"
	"github.com/arenahq/orgcore/internal/audit"
	"github.com/arenahq/orgcore/internal/auth"
	"github.com/arenahq/orgcore/internal/config"
	"github.com/arenahq/orgcore/internal/directory"
	"github.com/arenahq/orgcore/internal/orgs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(svc Services, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(auth.Middleware(cfg.JWTSecret))
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", apperrors.RequestIDHeader},
		ExposedHeaders: []string{apperrors.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(svc))

	m := svc.Manager

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireAuth)
		r.Use(UserSyncMiddleware(svc.Users))

		r.Route("/orgs", func(r chi.Router) {
			r.Use(mutationsOnly(UserRateLimitMiddleware(cfg.RateLimitRPM, "mutations")))

			r.Post("/", orgs.HandleCreate(m))

			r.Route("/{org_id}", func(r chi.Router) {
				r.Get("/", orgs.HandleGet(m))
				r.Patch("/", orgs.HandleUpdate(m))
				r.Delete("/", orgs.HandleDelete(m))
				r.Get("/analytics", orgs.HandleAnalytics(m))
				r.Get("/audit", audit.HandleList(m, svc.Audit))

				r.Get("/members", orgs.HandleListMembers(m))
				r.Post("/members", orgs.HandleAddStaffs(m))
				r.Put("/members/{user_id}", orgs.HandleUpdateMemberRole(m))
				r.Delete("/members/{user_id}", orgs.HandleRemoveMember(m))
				r.Post("/leave", orgs.HandleLeave(m))
				r.Post("/transfer", orgs.HandleTransferOwnership(m))

				r.Post("/invitations", orgs.HandleCreateInvitation(m))
				r.Get("/invitations", orgs.HandleListInvitations(m))
				r.Delete("/invitations/{invitation_id}", orgs.HandleCancelInvitation(m))

				r.Post("/join-requests", orgs.HandleCreateJoinRequest(m))
				r.Get("/join-requests", orgs.HandleListJoinRequests(m))
				r.Post("/join-requests/{request_id}/accept", orgs.HandleManageJoinRequest(m, orgs.JoinRequestAccept))
				r.Post("/join-requests/{request_id}/reject", orgs.HandleManageJoinRequest(m, orgs.JoinRequestReject))
			})
		})

		r.Route("/invitations/{invitation_id}", func(r chi.Router) {
			r.Use(UserRateLimitMiddleware(cfg.RateLimitRPM, "mutations"))
			r.Post("/accept", orgs.HandleManageInvitation(m, orgs.InvitationAccept))
			r.Post("/decline", orgs.HandleManageInvitation(m, orgs.InvitationDecline))
		})

		r.With(UserRateLimitMiddleware(cfg.SearchRateLimitRPM, "search")).
			Get("/directory/candidates", directory.HandleSearch(svc.Directory))
	})

	return r
}

// handleHealthz returns a simple liveness check
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz reports whether backing stores answer. Returns 503 if not.
func handleReadyz(svc Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready != nil {
			if err := svc.Ready(r.Context()); err != nil {
				log.Warn().Err(err).Msg("Readiness check failed")
				apperrors.WriteServiceUnavailable(w, r, "Dependencies unavailable")
				return
			}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
		})
	}
}
