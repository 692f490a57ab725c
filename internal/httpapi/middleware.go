package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/spigell/resumax/internal/logger"
)

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "Content-Type,Authorization,X-Api-Key,X-Request-Id",
	"Access-Control-Allow-Methods": "GET,POST,PUT,OPTIONS",
}

// cors sets the CORS headers on every response and answers preflight requests
// itself, whatever the path.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range corsHeaders {
			w.Header().Set(k, v)
		}

		if r.Method == http.MethodOptions {
			respondJSON(w, http.StatusOK, map[string]string{"message": "CORS preflight"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.WithFields(log, logger.StringFields(
				logger.StringField{Key: logger.FieldRequestID, Value: middleware.GetReqID(r.Context())},
			)...).Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// recoverer turns a panic into a JSON 500 carrying the panic message.
func recoverer(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				log.Error("panic while serving request",
					zap.String(logger.FieldRequestID, middleware.GetReqID(r.Context())),
					zap.Any("panic", rvr),
					zap.Stack("stack"),
				)
				respondError(w, http.StatusInternalServerError, fmt.Sprintf("internal server error: %v", rvr))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
