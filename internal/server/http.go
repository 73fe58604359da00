package server

import (
	nethttp "net/http"
	"runtime/debug"

	"go-shortener-pipeline/internal/conf"
	"go-shortener-pipeline/internal/infra/metrics"
	"go-shortener-pipeline/internal/service"
	"go-shortener-pipeline/pkg/problemdetails"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/gorilla/mux"
)

// NewHTTPServer new an HTTP server serving the url API.
func NewHTTPServer(c *conf.Server, urls *service.URLService, logger log.Logger) *http.Server {
	router := newRouter()
	urls.RegisterRoutes(router)
	return newHTTPServer(c.HTTP, router, logger)
}

// NewAdminHTTPServer serves only health and metrics, for the consumer process.
func NewAdminHTTPServer(c *conf.Server, logger log.Logger) *http.Server {
	return newHTTPServer(c.HTTP, newRouter(), logger)
}

func newRouter() *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods(nethttp.MethodGet)
	router.HandleFunc("/healthz", func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.WriteHeader(nethttp.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(nethttp.MethodGet)
	return router
}

func newHTTPServer(c *conf.Endpoint, router *mux.Router, logger log.Logger) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
		http.Filter(recoverFilter(logger)),
	}
	if c.Network != "" {
		opts = append(opts, http.Network(c.Network))
	}
	if c.Addr != "" {
		opts = append(opts, http.Address(c.Addr))
	}
	if c.Timeout > 0 {
		opts = append(opts, http.Timeout(c.Timeout.AsDuration()))
	}
	srv := http.NewServer(opts...)
	srv.HandlePrefix("/", router)
	return srv
}

// recoverFilter covers the plain handlers mounted on the router, which the
// kratos middleware chain does not wrap.
func recoverFilter(logger log.Logger) http.FilterFunc {
	helper := log.NewHelper(log.With(logger, "module", "server/http"))
	return func(next nethttp.Handler) nethttp.Handler {
		return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					helper.WithContext(r.Context()).Errorw(
						"msg", "handler panicked",
						"path", r.URL.Path,
						"panic", rec,
						"stack", string(debug.Stack()),
					)
					problemdetails.Write(w, problemdetails.New(
						nethttp.StatusInternalServerError,
						problemdetails.TypeInternalError,
						"Internal Server Error",
						"internal server error",
					))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
