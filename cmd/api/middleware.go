package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

type ctxKey int

const recorderKey ctxKey = iota

const anonymous = "anonymous"

// recordedBy is the identity stored on payments, sales and lots created by the request.
func recordedBy(r *http.Request) string {
	if who, ok := r.Context().Value(recorderKey).(string); ok && who != "" {
		return who
	}
	return anonymous
}

// AuthMiddleware requires a valid HS256 bearer token and uses its subject as the recorder identity.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, http.StatusUnauthorized, "no authorization header provided")
				return
			}
			tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				respondError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(jwtSecret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				respondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			subject, err := token.Claims.GetSubject()
			if err != nil || subject == "" {
				respondError(w, http.StatusUnauthorized, "invalid token: missing sub claim")
				return
			}
			ctx := context.WithValue(r.Context(), recorderKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HeaderIdentityMiddleware trusts the X-Recorded-By header. Used when no JWT secret is configured.
func HeaderIdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if who := strings.TrimSpace(r.Header.Get("X-Recorded-By")); who != "" {
			r = r.WithContext(context.WithValue(r.Context(), recorderKey, who))
		}
		next.ServeHTTP(w, r)
	})
}

// LogMiddleware logs information about each request
func LogMiddleware(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rw.status,
				"duration": time.Since(start).String(),
				"ip":       r.RemoteAddr,
			}).Info("HTTP request")
		})
	}
}

// statusResponseWriter captures the status code for the access log.
type statusResponseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *statusResponseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}
