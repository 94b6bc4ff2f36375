package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

type contextKey string

const UserIDKey contextKey = "userId"

const localUser = "local"

// ExtractUser reads the user from the headers set by the reverse proxy.
// Requests without one share the local workspace.
func ExtractUser(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Traefik BasicAuth sets this header
			userID := r.Header.Get("X-Auth-User")

			if userID == "" {
				userID = r.Header.Get("X-Forwarded-User")
			}
			if userID == "" {
				userID = r.Header.Get("Remote-User")
			}
			if userID == "" {
				userID = localUser
			}

			logger.Debug("request user", zap.String("user", userID), zap.String("path", r.URL.Path))

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserID(r *http.Request) string {
	userID, ok := r.Context().Value(UserIDKey).(string)
	if !ok {
		return localUser
	}
	return userID
}
