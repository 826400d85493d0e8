// Package main is the entry point for the hpn-p-router server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hpn/hpn-p-router/internal/config"
	"github.com/hpn/hpn-p-router/internal/ui"
)

var (
	cfgFile string

	appVersion = "dev"
)

var rootCmd = &cobra.Command{
	Use:           "hpn-p-router",
	Short:         "OpenAI-compatible router for the Phind web chat",
	Long:          "hpn-p-router serves /v1/chat/completions by driving the anonymous Phind web chat, rotating egress proxies on failure.",
	Version:       appVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration, then exit",
	RunE:  runValidate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: search ./, ./configs, /etc/hpn-p-router)")
	rootCmd.AddCommand(validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.GetConfigWithPath(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: %d proxies, model %q, %d advertised models\n",
		len(cfg.ProxyPool.URLs), cfg.Phind.Model, len(cfg.Phind.Models))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.GetConfigWithPath(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closeLog, err := setupLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}
	defer closeLog()

	ui.PrintBanner(appVersion)

	logger.Info("configuration loaded",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("model", cfg.Phind.Model),
		slog.Int("proxies", len(cfg.ProxyPool.URLs)),
		slog.Bool("cache", cfg.Cache.Enabled),
	)

	app := newApp(cfg, logger)
	defer app.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      app.Router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("address", addr))
		ui.PrintStartupInfo(cfg.Server.Host, cfg.Server.Port, app.Pool.ActiveCount(), cfg.Phind.Model)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	ui.PrintShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped gracefully")
	ui.PrintGoodbye()
	return nil
}
