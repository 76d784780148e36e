package adaptor

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"log/slog"

	"github.com/goccy/go-json"

	"stagehand/internal/logging"
)

// ServerPathEnv tells the in-Houdini client where the action socket lives.
const ServerPathEnv = "HOUDINI_ADAPTOR_SERVER_PATH"

// ActionServer hands actions to the in-Houdini client over a Unix domain
// socket. The client long-polls GET /action and reports fatal problems on
// POST /error.
type ActionServer struct {
	path   string
	queue  *Queue
	logger *slog.Logger

	server   *http.Server
	listener net.Listener

	mu        sync.Mutex
	clientErr error

	wg sync.WaitGroup
}

// NewActionServer listens on socketPath and serves the given queue.
func NewActionServer(socketPath string, queue *Queue, logger *slog.Logger) (*ActionServer, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on action socket: %w", err)
	}

	s := &ActionServer{
		path:     socketPath,
		queue:    queue,
		logger:   logger,
		listener: listener,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/action", s.handleAction)
	mux.HandleFunc("/error", s.handleError)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("action server stopped", logging.Error(err))
		}
	}()
	return s, nil
}

// Path returns the socket path the server listens on.
func (s *ActionServer) Path() string {
	return s.path
}

// ClientError returns the failure the client reported, if any.
func (s *ActionServer) ClientError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientErr
}

// Shutdown stops the server and removes the socket.
func (s *ActionServer) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.wg.Wait()
	_ = os.RemoveAll(s.path)
	return err
}

func (s *ActionServer) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	action, ok := s.queue.Dequeue()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(action); err != nil {
		s.logger.Error("encode action", logging.Error(err))
	}
}

func (s *ActionServer) handleError(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		http.Error(w, "read error body", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.clientErr = fmt.Errorf("houdini client failure: %s", string(body))
	s.mu.Unlock()
	s.logger.Error("client reported failure", slog.String("detail", string(body)))
	w.WriteHeader(http.StatusOK)
}
