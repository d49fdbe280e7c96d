package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"iganalyzer/internal/httpapi"
	"iganalyzer/pkg/logger"
)

var (
	serveAddr    string
	serveWorkers int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with background analysis jobs",
	Long: `Run the HTTP API.

Sessions are restored from their snapshots on startup. Sessions that were
still running when the previous process stopped are marked failed. Expired
sessions and stale media are swept in the background.`,
	Example: `  # Listen on the default :5000
  iganalyzer serve

  # Keep sessions in SQLite and run 8 jobs at once
  iganalyzer serve --session-backend sqlite --workers 8`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default :5000)")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "number of concurrent analysis jobs")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(map[string]interface{}{
		"addr":    serveAddr,
		"workers": serveWorkers,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds, err := resolveCredentials(cfg, log, accountName)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, log, creds)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.sessions.Load(ctx)
	if err != nil {
		return err
	}
	log.InfoWithFields("Sessions restored", map[string]interface{}{
		"loaded":    stats.Loaded,
		"expired":   stats.Expired,
		"malformed": stats.Malformed,
		"upgraded":  stats.Upgraded,
	})
	a.service.RecoverInterrupted()
	a.pool.Start()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      httpapi.NewServer(a.service, a.sessions, a.media, log, httpapi.WithJobStats(a.pool)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.sessions.RunSweeper(gctx, cfg.Session.SweepInterval)
	})
	g.Go(func() error {
		return a.media.RunSweeper(gctx, cfg.Media.SweepInterval, cfg.Media.Retention)
	})
	g.Go(func() error {
		logger.LogComponentStart(log, "http-server", map[string]interface{}{
			"addr": cfg.Server.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		logger.LogComponentStop(log, "http-server", "shutdown")
		return err
	})

	return g.Wait()
}
