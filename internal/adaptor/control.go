package adaptor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"stagehand/internal/logging"
)

// ControlServer exposes a running session over JSON-RPC on a Unix domain
// socket so later daemon commands can drive it.
type ControlServer struct {
	path      string
	listener  net.Listener
	rpcServer *rpc.Server
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
	stopped  chan struct{}
}

// controlService is the RPC surface.
type controlService struct {
	adaptor *Adaptor
	server  *ControlServer
	logger  *slog.Logger
}

// RunRequest asks the session to render one frame range.
type RunRequest struct {
	RunData RunData
}

// RunResponse reports a finished render.
type RunResponse struct {
	Progress int
}

// StopRequest asks the session to shut down.
type StopRequest struct{}

// StopResponse acknowledges shutdown.
type StopResponse struct{}

// CancelRequest aborts the current render.
type CancelRequest struct{}

// CancelResponse acknowledges the abort.
type CancelResponse struct{}

// StatusRequest queries session state.
type StatusRequest struct{}

// StatusResponse describes the live session.
type StatusResponse struct {
	Version   string
	Rendering bool
	Progress  int
	PID       int
}

// NewControlServer starts serving the adaptor on the given socket path.
func NewControlServer(ctx context.Context, path string, a *Adaptor, logger *slog.Logger) (*ControlServer, error) {
	if a == nil {
		return nil, errors.New("control server requires an adaptor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on control socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	s := &ControlServer{
		path:      path,
		listener:  listener,
		rpcServer: rpc.NewServer(),
		logger:    logger,
		ctx:       serverCtx,
		cancel:    cancel,
		stopped:   make(chan struct{}),
	}
	svc := &controlService{adaptor: a, server: s, logger: logger}
	if err := s.rpcServer.RegisterName("Adaptor", svc); err != nil {
		listener.Close()
		cancel()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Path returns the control socket path.
func (s *ControlServer) Path() string {
	return s.path
}

// Stopped is closed after a Stop request has been served.
func (s *ControlServer) Stopped() <-chan struct{} {
	return s.stopped
}

// Close shuts the listener down and waits for in-flight connections.
func (s *ControlServer) Close() error {
	s.cancel()
	err := s.listener.Close()
	s.wg.Wait()
	_ = os.RemoveAll(s.path)
	return err
}

func (s *ControlServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			s.logger.Error("accept control connection", logging.Error(err))
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
		}()
	}
}

func (s *ControlServer) markStopped() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// Run renders the requested frame range, blocking until it completes.
func (c *controlService) Run(req RunRequest, resp *RunResponse) error {
	if err := c.adaptor.Run(c.server.ctx, &req.RunData); err != nil {
		return err
	}
	resp.Progress = c.adaptor.Progress()
	return nil
}

// Stop shuts the session down and releases the daemon.
func (c *controlService) Stop(_ StopRequest, _ *StopResponse) error {
	err := c.adaptor.Stop(c.server.ctx)
	c.server.markStopped()
	return err
}

// Cancel aborts the in-flight render.
func (c *controlService) Cancel(_ CancelRequest, _ *CancelResponse) error {
	c.adaptor.Cancel()
	return nil
}

// Status reports the session state.
func (c *controlService) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Version = c.adaptor.Version()
	resp.Rendering = c.adaptor.Rendering()
	resp.Progress = c.adaptor.Progress()
	resp.PID = os.Getpid()
	return nil
}

// ControlClient dials a session's control socket.
type ControlClient struct {
	conn   net.Conn
	client *rpc.Client
}

// DialControl connects to the control socket.
func DialControl(path string) (*ControlClient, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &ControlClient{conn: conn, client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close closes the underlying connection.
func (c *ControlClient) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Run requests a render and blocks until the session reports completion.
func (c *ControlClient) Run(run RunData) (*RunResponse, error) {
	var resp RunResponse
	if err := c.client.Call("Adaptor.Run", RunRequest{RunData: run}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests session shutdown.
func (c *ControlClient) Stop() error {
	return c.client.Call("Adaptor.Stop", StopRequest{}, &StopResponse{})
}

// Cancel aborts the current render.
func (c *ControlClient) Cancel() error {
	return c.client.Call("Adaptor.Cancel", CancelRequest{}, &CancelResponse{})
}

// Status queries session state.
func (c *ControlClient) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Adaptor.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
