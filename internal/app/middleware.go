package app

import (
	"net/http"
	"strconv"
	"time"

	"github.com/arenahq/orgcore/internal/apperrors"
	"github.com/arenahq/orgcore/internal/auth"
	"github.com/arenahq/orgcore/internal/orgs"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LoggingMiddleware logs HTTP requests with structured fields.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		event := log.Info()
		if wrapped.statusCode >= http.StatusInternalServerError {
			event = log.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Str("request_id", apperrors.GetRequestID(r.Context())).
			Str("user_id", userLabel(r)).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP request")
	})
}

func userLabel(r *http.Request) string {
	id, ok := auth.GetIdentity(r.Context())
	if !ok {
		return ""
	}
	return id.UserID.String()
}

// RecoveryMiddleware recovers from panics and returns a 500 error.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("request_id", apperrors.GetRequestID(r.Context())).
					Str("path", r.URL.Path).
					Msg("Panic recovered")

				apperrors.WriteInternalError(w, r, "Internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// ContentTypeJSON sets Content-Type to application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// UserSyncMiddleware mirrors the authenticated caller into the user
// directory so that invitations, join requests and candidate search can
// resolve them. A failed sync is logged; the request proceeds and any
// lookup that needs the user reports it missing.
func UserSyncMiddleware(users orgs.UserDirectory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.GetIdentity(r.Context())
			if ok && users != nil {
				err := users.UpsertUser(r.Context(), orgs.User{
					ID:          id.UserID,
					Username:    id.Username,
					DisplayName: id.DisplayName,
					AvatarURL:   id.AvatarURL,
				})
				if err != nil {
					log.Warn().
						Err(err).
						Str("user_id", id.UserID.String()).
						Str("request_id", apperrors.GetRequestID(r.Context())).
						Msg("Failed to sync user")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserRateLimitMiddleware limits requests per authenticated user, falling
// back to the client IP.
func UserRateLimitMiddleware(requestsPerMinute int, scope string) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(keyByUser),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(60))
			log.Debug().
				Str("scope", scope).
				Str("user_id", userLabel(r)).
				Msg("Rate limit exceeded")
			apperrors.WriteTooManyRequests(w, r, "Too many requests. Try again later.")
		}),
	)
}

func keyByUser(r *http.Request) (string, error) {
	if id := auth.GetUserID(r.Context()); id != uuid.Nil {
		return "user:" + id.String(), nil
	}
	ip, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}

// mutationsOnly applies mw to non-GET requests.
func mutationsOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}
