// Package api assembles the HTTP surface of the server.
package api

import (
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/avatarcall/internal/api/callv1"
	apiconnect "github.com/osa030/avatarcall/internal/api/connect"
	"github.com/osa030/avatarcall/internal/api/web"
	"github.com/osa030/avatarcall/internal/api/webhook"
	"github.com/osa030/avatarcall/internal/infra/config"
	"github.com/osa030/avatarcall/internal/infra/metrics"
)

// Controller is the call controller served over HTTP.
type Controller interface {
	apiconnect.Controller
	webhook.ShutdownHandler
}

// RouterConfig holds the router dependencies.
type RouterConfig struct {
	Controller   Controller
	Metrics      *metrics.Metrics
	ControlToken string
}

// NewRouter builds the HTTP handler: Connect RPC, webhook, metrics, health and the web page.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	callPath, callHandler := callv1.NewCallServiceHandler(
		apiconnect.NewCallService(cfg.Controller, cfg.Metrics),
		connect.WithInterceptors(apiconnect.NewControlAuthInterceptor(cfg.ControlToken)),
	)
	r.Mount(callPath, callHandler)

	r.Handle(config.WebhookPath, webhook.NewHandler(cfg.Controller, cfg.Metrics))

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/*", web.NewHandler())

	return r
}

// requestLogger logs each request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		zlog.Debug().Msgf("http request: method=%s path=%s status=%d duration=%v request_id=%s",
			r.Method, r.URL.Path, ww.Status(), time.Since(started), middleware.GetReqID(r.Context()))
	})
}
