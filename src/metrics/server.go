package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	bilisentry "github.com/bililive-go/datachange/src/pkg/sentry"
)

// NewRouter 返回暴露 /metrics 和 /progress 的路由
func NewRouter(c *Collector, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequest)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/progress", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(c.Snapshots()); err != nil {
			logrus.WithError(err).Debug("failed to write progress response")
		}
	}).Methods(http.MethodGet)
	return r
}

func logRequest(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logrus.WithFields(logrus.Fields{
			"component":   "metrics_server",
			"method":      r.Method,
			"path":        r.RequestURI,
			"remote_addr": r.RemoteAddr,
		}).Debug("http request")
		handler.ServeHTTP(w, r)
	})
}

// Server 后台运行的指标服务
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Serve 在 bind 上启动指标服务，ctx 结束时关闭
func Serve(ctx context.Context, bind string, handler http.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, err
	}
	s := &Server{
		srv: &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	logger := logrus.WithField("component", "metrics_server")
	bilisentry.Go(func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server stopped")
		}
	})
	bilisentry.GoWithContext(ctx, func(ctx context.Context) {
		<-ctx.Done()
		s.Close()
	})
	logger.WithField("addr", ln.Addr().String()).Info("metrics server started")
	return s, nil
}

// Addr 实际监听的地址
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Close 关闭服务
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
