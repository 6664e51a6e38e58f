// Package httpserver provides the relay's control-plane HTTP surface:
// health checks and read-only tenant introspection. It runs on a separate
// port from internal/relay/server's websocket listener, matching the
// teacher's split between the data-plane transport and an operator-facing
// control plane.
//
// Example:
//
//	reg := tenant.NewRegistry(dataDir, storeOpt)
//	dir := tenant.NewDirectory()
//	s := httpserver.New(reg, dir, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
