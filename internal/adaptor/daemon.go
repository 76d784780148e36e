package adaptor

import (
	"context"
	"fmt"
	"os"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"stagehand/internal/adaptor/connection"
	"stagehand/internal/config"
	"stagehand/internal/pathmap"
)

// Serve runs a complete session lifecycle in the current process: start the
// Houdini client, publish the connection file, and serve control requests
// until a stop arrives or the context ends.
func Serve(ctx context.Context, cfg *config.Config, connectionPath string, init *InitData, rules []pathmap.Rule, logger *slog.Logger) error {
	lock, err := connection.Acquire(connectionPath)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	a, err := New(cfg, cfg.HythonBinary(), init, rules, logger)
	if err != nil {
		return err
	}

	if err := a.Start(ctx); err != nil {
		_ = a.Cleanup(context.Background())
		return fmt.Errorf("start houdini session: %w", err)
	}

	control, err := NewControlServer(ctx, connectionPath+".sock", a, logger)
	if err != nil {
		_ = a.Stop(context.Background())
		_ = a.Cleanup(context.Background())
		return err
	}

	info := connection.Info{
		SocketPath: control.Path(),
		PID:        os.Getpid(),
		SessionID:  uuid.NewString(),
		StartedAt:  time.Now().UTC(),
	}
	if err := connection.Write(connectionPath, info); err != nil {
		_ = control.Close()
		_ = a.Stop(context.Background())
		_ = a.Cleanup(context.Background())
		return err
	}

	logger.Info("session ready",
		slog.String("connection_file", connectionPath),
		slog.String("socket", control.Path()),
		slog.Int("pid", info.PID))

	select {
	case <-control.Stopped():
	case <-ctx.Done():
		_ = a.Stop(context.Background())
	}

	err = control.Close()
	if cleanupErr := a.Cleanup(context.Background()); err == nil {
		err = cleanupErr
	}
	if removeErr := connection.Remove(connectionPath); err == nil {
		err = removeErr
	}
	return err
}

// WaitForConnection polls until the connection file appears and parses,
// which signals the background session finished initializing.
func WaitForConnection(ctx context.Context, path string, timeout time.Duration) (*connection.Info, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		info, err := connection.Read(path)
		if err == nil {
			return info, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("session did not publish %s within %s", path, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
