package daemon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// DebugServer exposes a read-only gin API over the daemon's live
// tunnels (SPEC_FULL.md supplemented "Debug introspection" feature),
// shaped after meshstorage/api's Server.
type DebugServer struct {
	daemon     *Daemon
	router     *gin.Engine
	httpServer *http.Server
}

// NewDebugServer builds the gin router for addr; call Start to serve.
func NewDebugServer(d *Daemon, addr string) *DebugServer {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &DebugServer{
		daemon: d,
		router: router,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
	s.setupRoutes()
	return s
}

func (s *DebugServer) setupRoutes() {
	v1 := s.router.Group("/debug/v1")
	v1.GET("/tunnels", s.handleListTunnels)
	v1.GET("/tunnels/:peer", s.handleTunnelSnapshot)
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func (s *DebugServer) handleListTunnels(c *gin.Context) {
	tunnels := s.daemon.Tunnels()
	peers := make([]string, 0, len(tunnels))
	for peerKey := range tunnels {
		peers = append(peers, peerKey)
	}
	c.JSON(http.StatusOK, gin.H{"peers": peers})
}

func (s *DebugServer) handleTunnelSnapshot(c *gin.Context) {
	peerKey := c.Param("peer")
	t, ok := s.daemon.Tunnels()[peerKey]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no tunnel for peer"})
		return
	}
	c.JSON(http.StatusOK, t.Snapshot())
}

// Start serves the debug API until the process exits or ctx is
// cancelled.
func (s *DebugServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("daemon: debug server: %w", err)
		}
		return nil
	}
}
