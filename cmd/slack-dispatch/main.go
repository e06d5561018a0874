package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	slackdispatch "github.com/goliatone/go-slack-dispatch"
	"github.com/goliatone/go-slack-dispatch/adapters/gologger"
	"github.com/goliatone/go-slack-dispatch/core"
	"github.com/goliatone/go-slack-dispatch/security"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "slack-dispatch",
		Short:         "Deadline-driven Slack event dispatcher",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newSealCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configPath string
	var role string
	var mode string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Slack events endpoint",
		Long: `Serve the Slack events endpoint.

Configuration is read from the optional YAML file, then SLACK_DISPATCH_*
environment variables, then flags.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			overrides := core.Config{}
			overrides.Dispatch.Role = strings.TrimSpace(role)
			overrides.Dispatch.Mode = strings.TrimSpace(mode)
			cfg, err := core.LoadConfig(ctx,
				core.FileConfigLoader{Path: configPath, Optional: configPath == ""},
				core.EnvConfigLoader{},
				overrides,
			)
			if err != nil {
				return err
			}
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&role, "role", "", "unit role: receiver or relay")
	cmd.Flags().StringVar(&mode, "mode", "", "dispatch mode: inprocess, queue or invoke")
	return cmd
}

func serve(ctx context.Context, cfg core.Config) error {
	logger, err := gologger.NewZapLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named(cfg.ServiceName)

	rt, err := slackdispatch.New(ctx, cfg, slackdispatch.WithLogger(logger))
	if err != nil {
		logger.Error("startup failed", "error", err.Error())
		return err
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      rt.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("listening", "addr", cfg.HTTP.Addr, "role", cfg.Dispatch.Role, "mode", cfg.Dispatch.Mode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return rt.RunWorkers(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		shutdownErr := server.Shutdown(shutdownCtx)
		if err := rt.Close(shutdownCtx); err != nil {
			logger.Warn("runtime close failed", "error", err.Error())
		}
		return shutdownErr
	})
	return group.Wait()
}

func newSealCmd() *cobra.Command {
	var keyEnv string

	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Seal a secret payload read from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key := os.Getenv(keyEnv)
			if strings.TrimSpace(key) == "" {
				return fmt.Errorf("environment variable %s is empty", keyEnv)
			}
			sealer, err := security.NewSealer([]byte(key))
			if err != nil {
				return err
			}
			payload, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			sealed, err := sealer.Seal([]byte(strings.TrimSpace(string(payload))))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(sealed))
			return err
		},
	}
	cmd.Flags().StringVar(&keyEnv, "app-key-env", "SLACK_DISPATCH_APP_KEY", "environment variable holding the sealing key")
	return cmd
}
