// Package httpapi serves a read-only JSON view of the daemon: health, plan
// schedule, supervised goroutines and recent run history.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tickd/internal/reactor"
	"tickd/internal/runtime/supervisor"
	"tickd/internal/storage"
	logx "tickd/pkg/logx"
)

const shutdownTimeout = 5 * time.Second

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Source is the daemon state exposed over HTTP.
type Source interface {
	Plans() reactor.Snapshot
	Goroutines() supervisor.Snapshot
	Err() error
	// History returns storage.ErrDisabled when run history is off.
	History(ctx context.Context, limit int) ([]storage.RunRecord, error)
}

// Config controls the status endpoint.
//
// Security:
//   - Prefer binding to localhost.
//   - A non-loopback Addr requires Token unless AllowInsecure is set.
type Config struct {
	Addr          string
	Token         string
	AllowInsecure bool
	// Pprof mounts net/http/pprof under /debug/pprof/ behind the same token.
	Pprof bool
}

type Server struct {
	cfg Config
	src Source
	log logx.Logger
	h   http.Handler
}

func New(cfg Config, src Source, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	cfg.Token = strings.TrimSpace(cfg.Token)
	s := &Server{cfg: cfg, src: src, log: log}
	s.h = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.h }

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Token == "" && !isLoopbackAddr(s.cfg.Addr) {
		if !s.cfg.AllowInsecure {
			return fmt.Errorf("status endpoint refused %q: non-loopback addr requires token or allow_insecure", s.cfg.Addr)
		}
		s.log.Warn("status endpoint running without token on non-loopback addr (insecure)", logx.String("addr", s.cfg.Addr))
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.h, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("status endpoint listening",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", s.cfg.Token != ""),
		logx.Bool("pprof", s.cfg.Pprof),
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog(), requireToken(s.cfg.Token))
	r.GET("/healthz", s.healthz)
	r.GET("/plans", s.plans)
	r.GET("/status", s.status)
	r.GET("/history", s.history)
	if s.cfg.Pprof {
		mountPprof(r)
	}
	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.FullPath()),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)),
		)
	}
}

func (s *Server) healthz(c *gin.Context) {
	if err := s.src.Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) plans(c *gin.Context) {
	c.JSON(http.StatusOK, s.src.Plans())
}

type statusResponse struct {
	Reactor    reactor.Snapshot    `json:"reactor"`
	Supervisor supervisor.Snapshot `json:"supervisor"`
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{Reactor: s.src.Plans(), Supervisor: s.src.Goroutines()})
}

type historyQuery struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=1000"`
	Action string `form:"action" binding:"omitempty,max=200"`
}

func (s *Server) history(c *gin.Context) {
	q := historyQuery{Limit: 50}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	recs, err := s.src.History(c.Request.Context(), q.Limit)
	if errors.Is(err, storage.ErrDisabled) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history disabled"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if q.Action != "" {
		kept := recs[:0]
		for _, r := range recs {
			if r.Action == q.Action {
				kept = append(kept, r)
			}
		}
		recs = kept
	}
	if recs == nil {
		recs = []storage.RunRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": recs})
}
