package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"emsi-preparator/internal/app"
	transport "emsi-preparator/internal/transport/http"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the UI shell server.
func NewStartCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the UI shell server (websocket quiz sessions and history API)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts)
		},
	}
}

func runServer(ctx context.Context, opts *globalOptions) error {
	d, err := buildDeps(ctx, opts)
	if err != nil {
		return err
	}
	defer d.Close()

	if d.cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, d.cfg, d.log); err != nil {
			return err
		}
	}

	finalPort := opts.port
	if finalPort == "" {
		finalPort = d.cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8081"
	}

	sessionOpts := d.sessionOptions()
	wsHandler := transport.NewWSHandler(d.identities, d.client, func(identity *app.IdentityProvider) *app.Session {
		return app.NewSession(d.client, identity, d.log, sessionOpts...)
	}, d.log)
	apiHandler := transport.NewAPIHandler(d.identities, d.client, app.NewHistoryService(d.history, d.log), d.reportOpts, d.log)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(wsHandler, apiHandler, d.log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		d.log.WithField("port", finalPort).Info("starting ui shell server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-serveErr:
		d.log.WithError(err).Error("failed to start server")
		return fmt.Errorf("serve on port %s: %w", finalPort, err)
	case <-stop:
		d.log.Info("shutting down server...")
	case <-ctx.Done():
		d.log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
