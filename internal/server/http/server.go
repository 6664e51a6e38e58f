package httpserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/nostrhub/nostrhub/internal/relay/tenant"
	"github.com/nostrhub/nostrhub/pkg/log"
)

// Server is the control-plane HTTP listener: health checks plus read-only
// tenant introspection. It never touches the event store's write path —
// that's websocket-only, handled by internal/relay/server.
type Server struct {
	registry  *tenant.Registry
	directory *tenant.Directory
	logger    log.Logger

	srv *http.Server
	lis net.Listener
}

// New builds the control-plane server, routing through registry/directory
// for tenant introspection.
func New(registry *tenant.Registry, directory *tenant.Directory, logger log.Logger) *Server {
	r := mux.NewRouter()
	s := &Server{registry: registry, directory: directory, logger: logger, srv: &http.Server{Handler: cors(withRequestID(r, logger))}}
	r.HandleFunc("/v1/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/tenants/{id}/stats", s.handleTenantStats).Methods(http.MethodGet)
	return s
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRequestID attaches a correlation id to every request's context,
// surfaced back on the response for operator tracing.
func withRequestID(next http.Handler, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID)))
	})
}

type requestIDKey struct{}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleTenantStats(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["id"]
	stats, ok := s.directory.Stats(tenantID)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	env, err := s.registry.Env(tenantID)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"tenantId":    stats.TenantID,
		"memberCount": stats.MemberCount,
		"maxLevId":    env.MaxLevID(),
	})
}
