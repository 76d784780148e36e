package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stagehand/internal/adaptor"
	"stagehand/internal/adaptor/connection"
	"stagehand/internal/config"
	"stagehand/internal/pathmap"
)

// stopShutdownGrace covers the session's terminate fallback and cleanup
// after its end timeout elapses, so a slow hython exit is not reported as a
// stop failure while the session is still shutting down.
const stopShutdownGrace = 10 * time.Second

// stopPollTimeout is how long `daemon stop` waits for the connection file to
// disappear after asking the session to close.
func stopPollTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Adaptor.ClientEndTimeout)*time.Second + stopShutdownGrace
}

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background render session",
	}

	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonServeCommand(ctx))
	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	daemonCmd.AddCommand(newDaemonCancelCommand(ctx))
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))

	return daemonCmd
}

// readDataArg loads an inline path or a file:// reference, the form the job
// template uses for embedded files.
func readDataArg(arg string) ([]byte, error) {
	path := strings.TrimPrefix(strings.TrimSpace(arg), "file://")
	if path == "" {
		return nil, errors.New("empty data argument")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	var connectionFile string
	var initDataArg string
	var pathMappingRules string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a background Houdini session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			raw, err := readDataArg(initDataArg)
			if err != nil {
				return fmt.Errorf("init data: %w", err)
			}
			// Validate before forking so a malformed document fails the
			// onEnter action instead of a detached process.
			if _, err := adaptor.ParseInitData(raw); err != nil {
				return err
			}
			if pathMappingRules != "" {
				rulesPath := strings.TrimPrefix(pathMappingRules, "file://")
				if _, err := pathmap.LoadRules(rulesPath); err != nil {
					return err
				}
			}

			self, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locate executable: %w", err)
			}

			serveArgs := []string{"daemon", "_serve",
				"--connection-file", connectionFile,
				"--init-data", initDataArg,
			}
			if pathMappingRules != "" {
				serveArgs = append(serveArgs, "--path-mapping-rules", pathMappingRules)
			}
			if ctx.configFlag != nil && strings.TrimSpace(*ctx.configFlag) != "" {
				serveArgs = append(serveArgs, "--config", *ctx.configFlag)
			}

			serveCmd := exec.Command(self, serveArgs...)
			serveCmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
			serveCmd.Stdout = nil
			serveCmd.Stderr = nil
			if err := serveCmd.Start(); err != nil {
				return fmt.Errorf("start session process: %w", err)
			}
			// The session outlives this command; reap it from a goroutine so
			// a fast failure does not leave a zombie while we poll.
			go func() { _ = serveCmd.Wait() }()

			timeout := time.Duration(cfg.Adaptor.ServerStartTimeout) * time.Second
			info, err := adaptor.WaitForConnection(cmd.Context(), connectionFile, timeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s ready (pid %d)\n", info.SessionID, info.PID)
			return nil
		},
	}

	cmd.Flags().StringVar(&connectionFile, "connection-file", "", "Connection file the session publishes")
	cmd.Flags().StringVar(&initDataArg, "init-data", "", "Init data document (path or file:// reference)")
	cmd.Flags().StringVar(&pathMappingRules, "path-mapping-rules", "", "Path mapping rules document (path or file:// reference)")
	_ = cmd.MarkFlagRequired("connection-file")
	_ = cmd.MarkFlagRequired("init-data")
	return cmd
}

func newDaemonServeCommand(ctx *commandContext) *cobra.Command {
	var connectionFile string
	var initDataArg string
	var pathMappingRules string

	cmd := &cobra.Command{
		Use:    "_serve",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := sessionLogger(cfg)
			if err != nil {
				return err
			}

			raw, err := readDataArg(initDataArg)
			if err != nil {
				return fmt.Errorf("init data: %w", err)
			}
			init, err := adaptor.ParseInitData(raw)
			if err != nil {
				return err
			}

			var rules []pathmap.Rule
			if pathMappingRules != "" {
				rulesPath := strings.TrimPrefix(pathMappingRules, "file://")
				rules, err = pathmap.LoadRules(rulesPath)
				if err != nil {
					return err
				}
			}

			serveCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return adaptor.Serve(serveCtx, cfg, connectionFile, init, rules, logger)
		},
	}

	cmd.Flags().StringVar(&connectionFile, "connection-file", "", "Connection file to publish")
	cmd.Flags().StringVar(&initDataArg, "init-data", "", "Init data document")
	cmd.Flags().StringVar(&pathMappingRules, "path-mapping-rules", "", "Path mapping rules document")
	_ = cmd.MarkFlagRequired("connection-file")
	_ = cmd.MarkFlagRequired("init-data")
	return cmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var connectionFile string
	var runDataArg string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Render one task in the running session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}

			raw, err := readDataArg(runDataArg)
			if err != nil {
				return fmt.Errorf("run data: %w", err)
			}
			run, err := adaptor.ParseRunData(raw)
			if err != nil {
				return err
			}

			client, err := dialSession(connectionFile)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.Run(*run)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Render finished (%d%%)\n", resp.Progress)
			return nil
		},
	}

	cmd.Flags().StringVar(&connectionFile, "connection-file", "", "Connection file of the running session")
	cmd.Flags().StringVar(&runDataArg, "run-data", "", "Run data document (path or file:// reference)")
	_ = cmd.MarkFlagRequired("connection-file")
	_ = cmd.MarkFlagRequired("run-data")
	return cmd
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	var connectionFile string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			client, err := dialSession(connectionFile)
			if errors.Is(err, connection.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "No session is running.")
				return nil
			}
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Stop(); err != nil {
				return err
			}

			// The session removes the connection file as its final act.
			timeout := stopPollTimeout(cfg)
			deadline := time.Now().Add(timeout)
			for {
				if _, err := connection.Read(connectionFile); errors.Is(err, connection.ErrNotFound) {
					fmt.Fprintln(cmd.OutOrStdout(), "Session stopped.")
					return nil
				}
				if time.Now().After(deadline) {
					return fmt.Errorf("session did not exit within %s", timeout)
				}
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(100 * time.Millisecond):
				}
			}
		},
	}

	cmd.Flags().StringVar(&connectionFile, "connection-file", "", "Connection file of the running session")
	_ = cmd.MarkFlagRequired("connection-file")
	return cmd
}

func newDaemonCancelCommand(ctx *commandContext) *cobra.Command {
	var connectionFile string

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Abort the current render",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}

			client, err := dialSession(connectionFile)
			if errors.Is(err, connection.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "No session is running.")
				return nil
			}
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Cancel(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cancel requested.")
			return nil
		},
	}

	cmd.Flags().StringVar(&connectionFile, "connection-file", "", "Connection file of the running session")
	_ = cmd.MarkFlagRequired("connection-file")
	return cmd
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	var connectionFile string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}

			client, err := dialSession(connectionFile)
			if errors.Is(err, connection.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "No session is running.")
				return nil
			}
			if err != nil {
				return err
			}
			defer client.Close()

			status, err := client.Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "PID:       %d\n", status.PID)
			fmt.Fprintf(out, "Houdini:   %s\n", valueOrUnknown(status.Version))
			fmt.Fprintf(out, "Rendering: %t\n", status.Rendering)
			if status.Rendering {
				fmt.Fprintf(out, "Progress:  %d%%\n", status.Progress)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&connectionFile, "connection-file", "", "Connection file of the running session")
	_ = cmd.MarkFlagRequired("connection-file")
	return cmd
}

func dialSession(connectionFile string) (*adaptor.ControlClient, error) {
	info, err := connection.Read(connectionFile)
	if err != nil {
		return nil, err
	}
	client, err := adaptor.DialControl(info.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to session socket %s: %w", info.SocketPath, err)
	}
	return client, nil
}

func valueOrUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func sessionLogPath(logDir string) string {
	return filepath.Join(logDir, "stagehand-adaptor.log")
}
