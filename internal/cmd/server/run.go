package serverrun

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cfgpkg "github.com/nostrhub/nostrhub/internal/config"
	relayserver "github.com/nostrhub/nostrhub/internal/relay/server"
	httpserver "github.com/nostrhub/nostrhub/internal/server/http"
	logpkg "github.com/nostrhub/nostrhub/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Options configures a relay process: where its tenant environments live
// and which addresses its two HTTP surfaces bind (the websocket/NIP-11
// listener and the control-plane listener).
type Options struct {
	DataDir     string
	RelayAddr   string
	ControlAddr string
	Config      cfgpkg.Config
}

// Run builds the relay and control-plane servers and blocks until ctx is
// cancelled, then shuts both down in reverse order.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}

	logCfg := logpkg.Config{
		Level:  getenvDefault("NOSTRHUB_LOG_LEVEL", "info"),
		Format: getenvDefault("NOSTRHUB_LOG_FORMAT", "text"),
	}
	procLogger, err := logpkg.ApplyConfig(logCfg)
	if err != nil {
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(logCfg.Level); e == nil {
			lvl = l
		}
		procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}
	logpkg.RedirectStdLog(procLogger)

	procLogger.Info("starting nostrhub relay",
		logpkg.Str("relay_addr", opts.RelayAddr),
		logpkg.Str("control_addr", opts.ControlAddr),
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("level", logCfg.Level),
	)

	rs, err := relayserver.New(relayserver.Options{DataDir: opts.DataDir, Config: opts.Config, Logger: procLogger})
	if err != nil {
		return err
	}
	rs.Start(sctx)

	csrv := httpserver.New(rs.Registry(), rs.Directory(), procLogger.With(logpkg.Component("control")))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rs.ListenAndServe(sctx, opts.RelayAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("relay listener stopped", logpkg.Err(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := csrv.ListenAndServe(sctx, opts.ControlAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("control listener stopped", logpkg.Err(err))
		}
	}()

	<-sctx.Done()
	csrv.Close()
	wg.Wait()
	return nil
}
