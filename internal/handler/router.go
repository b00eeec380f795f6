package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"phone-auth-service/internal/config"
	"phone-auth-service/internal/service"
	"phone-auth-service/internal/util"
)

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Handlers struct {
	Verification *VerificationHandler
	Token        *TokenHandler
	Account      *AccountHandler
	Health       HealthChecker
}

// requireHTTPS rejects any request that wasn't made over TLS
func requireHTTPS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUpgradeRequired)
			w.Write([]byte(`{"error":"https required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestMeta copies the caller address into the context for audit events.
// Must run after middleware.RealIP.
func requestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := service.WithRequestMeta(r.Context(), service.RequestMeta{RemoteIP: r.RemoteAddr})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func NewRouter(h Handlers, cfg config.ServerConfig, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	if cfg.RequireHTTPS {
		router.Use(requireHTTPS)
	}

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(requestMeta)

	allowedOrigins := cfg.AllowedCORS
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"https://*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", healthHandler(h.Health, logger))

	if h.Verification != nil {
		h.Verification.RegisterRoutes(router)
	}
	if h.Token != nil {
		h.Token.RegisterRoutes(router)
	}
	if h.Account != nil {
		h.Account.RegisterRoutes(router)
	}

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"error":"method not allowed"}`))
	})

	return router
}

func healthHandler(checker HealthChecker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.HealthCheck(r.Context()); err != nil {
				logger.Warn("Health check failed", util.ErrorField(err))
				respondWithJSON(w, logger, http.StatusServiceUnavailable,
					map[string]string{"status": "unhealthy", "service": "phone-auth-service"})
				return
			}
		}
		respondWithJSON(w, logger, http.StatusOK,
			map[string]string{"status": "healthy", "service": "phone-auth-service"})
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("request_id", middleware.GetReqID(r.Context())),
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
