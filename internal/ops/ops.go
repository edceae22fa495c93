// Package ops runs the operational HTTP sidecar: health, Prometheus
// metrics, and a small status page. It is plain HTTP and entirely
// separate from the client wire protocol.
package ops

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grove/internal/store"
)

type Sidecar struct {
	store   *store.Store
	log     *slog.Logger
	started time.Time
	srv     *http.Server
}

func New(bind string, s *store.Store, log *slog.Logger) *Sidecar {
	if log == nil {
		log = slog.Default()
	}
	sc := &Sidecar{
		store:   s,
		log:     log.With("component", "ops"),
		started: time.Now(),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", sc.health)
	r.GET("/statusz", sc.status)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	sc.srv = &http.Server{Addr: bind, Handler: r}
	return sc
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Sidecar) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("ops sidecar listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Sidecar) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Sidecar) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"users":      s.store.UserCount(),
		"posts":      s.store.PostCount(),
		"goroutines": runtime.NumGoroutine(),
	})
}
