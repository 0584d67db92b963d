package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter собирает маршруты /api. metrics == nil: без /metrics.
func NewRouter(h *Handler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)
		// RFP
		r.Get("/rfps", h.GetRFPsHandler)
		r.Post("/rfp", h.CreateRFPHandler)
		r.Post("/rfp/send", h.SendRFPHandler)
		r.Get("/rfp/{id}", h.GetRFPHandler)
		r.Get("/rfp/{id}/compare", h.CompareHandler)
		r.Get("/rfp/{id}/proposals", h.GetProposalsHandler)
		r.Post("/rfp/{id}/close", h.CloseRFPHandler)
		// поставщики
		r.Get("/vendors", h.GetVendorsHandler)
		r.Post("/vendor", h.CreateVendorHandler)
		// входящие письма
		r.Post("/webhook/email", h.InboundEmailHandler)
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
