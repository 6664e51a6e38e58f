// Package server wires every relay pool together and exposes the HTTP
// upgrade endpoint (spec.md §4: Websocket -> Ingester -> {Writer, Req
// Worker, Negentropy} -> Req Monitor -> Websocket). Adapted from
// internal/cmd/server/run.go's shape: build shared state, start every
// transport, block until the context is cancelled, shut down in reverse
// order.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/nostrhub/nostrhub/internal/config"
	"github.com/nostrhub/nostrhub/internal/relay/ingest"
	"github.com/nostrhub/nostrhub/internal/relay/negentropy"
	"github.com/nostrhub/nostrhub/internal/relay/pool"
	"github.com/nostrhub/nostrhub/internal/relay/relaymsg"
	"github.com/nostrhub/nostrhub/internal/relay/reqmonitor"
	"github.com/nostrhub/nostrhub/internal/relay/reqworker"
	"github.com/nostrhub/nostrhub/internal/relay/tenant"
	"github.com/nostrhub/nostrhub/internal/relay/writer"
	"github.com/nostrhub/nostrhub/internal/relay/ws"
	pebblestore "github.com/nostrhub/nostrhub/internal/storage/pebble"
	"github.com/nostrhub/nostrhub/pkg/log"
)

// Options configures Server construction.
type Options struct {
	DataDir string
	Config  config.Config
	Logger  log.Logger
}

// Server owns the tenant registry/directory, every worker pool, the
// Websocket transport, and the HTTP mux that fronts it.
type Server struct {
	cfg    config.Config
	logger log.Logger

	registry  *tenant.Registry
	directory *tenant.Directory

	ingestPool     *pool.Pool[relaymsg.IngestMsg]
	writerPool     *pool.Pool[relaymsg.WriterMsg]
	reqWorkerPool  *pool.Pool[relaymsg.ReqWorkerMsg]
	reqMonitorPool *pool.Pool[relaymsg.ReqMonitorMsg]
	negentropyPool *pool.Pool[relaymsg.NegentropyMsg]

	wsPool *ws.Pool
	mux    *http.ServeMux
	http   *http.Server
}

// New builds every pool and the HTTP mux but does not start anything;
// call Start to launch the pools and ListenAndServe to bind the listener.
func New(opts Options) (*Server, error) {
	cfg := opts.Config
	logger := opts.Logger

	storeOpt := pebblestore.Options{Fsync: pebblestore.FsyncModeAlways}
	if cfg.DBParams.MaxReaders > 0 || cfg.DBParams.MapSize > 0 {
		po := &pebble.Options{}
		if cfg.DBParams.MaxReaders > 0 {
			po.MaxOpenFiles = cfg.DBParams.MaxReaders
		}
		if cfg.DBParams.MapSize > 0 {
			po.Cache = pebble.NewCache(cfg.DBParams.MapSize)
		}
		storeOpt.PebbleOptions = po
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		registry:  tenant.NewRegistry(opts.DataDir, storeOpt),
		directory: tenant.NewDirectory(),
		mux:       http.NewServeMux(),
	}

	s.wsPool = ws.New(ws.Deps{Logger: logger})

	s.writerPool = pool.NewWithFactory(
		"writer", cfg.Threads.Ingester, 256, logger,
		writer.NewHandlerFactory(writer.Deps{Registry: s.registry, Sender: s.wsPool, Logger: logger}),
	)

	reqMonitorHandle := reqmonitor.NewPoolHandle()
	s.reqMonitorPool = pool.NewWithFactory(
		"reqmonitor", cfg.Threads.ReqMonitor, 256, logger,
		reqmonitor.NewHandlerFactory(reqmonitor.Deps{
			Registry:                s.registry,
			Sender:                  s.wsPool,
			SelfPool:                reqMonitorHandle,
			MaxSubscriptionsPerConn: cfg.TenantDefaults.MaxSubscriptionsPerConn,
			Logger:                  logger,
		}),
	)
	reqMonitorHandle.Set(s.reqMonitorPool)

	s.reqWorkerPool = pool.NewWithFactory(
		"reqworker", cfg.Threads.ReqWorker, 256, logger,
		reqworker.NewHandlerFactory(reqworker.Deps{
			Registry:                s.registry,
			Sender:                  s.wsPool,
			ReqMonitorPool:          s.reqMonitorPool,
			MaxSubscriptionsPerConn: cfg.TenantDefaults.MaxSubscriptionsPerConn,
			Logger:                  logger,
		}),
	)

	s.negentropyPool = pool.NewWithFactory(
		"negentropy", cfg.Threads.Negentropy, 256, logger,
		negentropy.NewHandlerFactory(negentropy.Deps{
			Registry:      s.registry,
			Sender:        s.wsPool,
			MaxSyncEvents: cfg.Relay.Negentropy.MaxSyncEvents,
			Logger:        logger,
		}),
	)

	s.ingestPool = pool.NewWithFactory(
		"ingest", cfg.Threads.Ingester, 256, logger,
		ingest.NewHandlerFactory(ingest.Deps{
			Registry:          s.registry,
			Directory:         s.directory,
			Sender:            s.wsPool,
			WriterPool:        s.writerPool,
			ReqWorkerPool:     s.reqWorkerPool,
			NegentropyPool:    s.negentropyPool,
			ServiceURL:        cfg.Relay.ServiceURL,
			MaxReqFilterSize:  cfg.Relay.MaxReqFilterSize,
			ChallengeBytes:    cfg.Auth.ChallengeBytes,
			NegentropyEnabled: cfg.Relay.Negentropy.Enabled,
			MaxSyncEvents:     cfg.Relay.Negentropy.MaxSyncEvents,
			Logger:            logger,
		}),
	)
	s.wsPool.SetIngestPool(s.ingestPool)
	s.registerRoutes()

	return s, nil
}

// Registry exposes the tenant storage registry for the control-plane HTTP
// server's introspection endpoints.
func (s *Server) Registry() *tenant.Registry { return s.registry }

// Directory exposes the tenant membership directory for the control-plane
// HTTP server's introspection endpoints.
func (s *Server) Directory() *tenant.Directory { return s.directory }

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleRoot serves the relay's NIP-11 style info document for plain HTTP
// GETs and upgrades websocket requests, routing each connection to the
// tenant its Host header or URL path names (spec.md §4.1/§6).
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	tenantID := tenant.ExtractID(r.Host, r.URL.Path)
	if !s.cfg.AllowAutoCreateTenants && tenantID != s.cfg.DefaultTenantID && !s.directory.HasTenant(tenantID) {
		http.Error(w, "unknown tenant", http.StatusNotFound)
		return
	}
	s.directory.EnsureTenant(tenantID)

	if isWebsocketUpgrade(r) {
		s.wsPool.Handler(tenantID)(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/nostr+json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"name":           s.cfg.Relay.Name,
		"pubkey":         s.cfg.Relay.Pubkey,
		"supported_nips": []int{1, 11, 42, 70, 77},
		"software":       "nostrhub",
	})
}

func isWebsocketUpgrade(r *http.Request) bool {
	return r.Header.Get("Upgrade") == "websocket"
}

// Start launches every worker pool. Call before ListenAndServe.
func (s *Server) Start(ctx context.Context) {
	s.writerPool.Start(ctx)
	s.reqMonitorPool.Start(ctx)
	s.reqWorkerPool.Start(ctx)
	s.negentropyPool.Start(ctx)
	s.ingestPool.Start(ctx)
}

// ListenAndServe binds addr and blocks until ctx is cancelled, then drains
// connections and closes every tenant environment.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.mux}

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.wsPool.GracefulShutdown(shutdownCtx)
	_ = s.http.Shutdown(shutdownCtx)

	if err := s.writerPool.Stop(); err != nil {
		s.logger.Error("writer pool stop", log.Err(err))
	}
	if err := s.reqWorkerPool.Stop(); err != nil {
		s.logger.Error("reqworker pool stop", log.Err(err))
	}
	if err := s.reqMonitorPool.Stop(); err != nil {
		s.logger.Error("reqmonitor pool stop", log.Err(err))
	}
	if err := s.negentropyPool.Stop(); err != nil {
		s.logger.Error("negentropy pool stop", log.Err(err))
	}
	if err := s.ingestPool.Stop(); err != nil {
		s.logger.Error("ingest pool stop", log.Err(err))
	}

	if err := s.registry.Close(); err != nil {
		return fmt.Errorf("close tenant registry: %w", err)
	}
	return nil
}
