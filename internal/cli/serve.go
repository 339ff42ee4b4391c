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

	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	eng := engine.New(rt.registry, rt.db, rt.cfg.EngineParams(), rt.log)
	srv := server.New(server.Options{
		Ingest:       rt.ingest,
		Engine:       eng,
		Commitments:  rt.db,
		DB:           rt.db,
		Log:          rt.log,
		Version:      VersionString(),
		IngestRate:   rt.cfg.Server.IngestRate,
		IngestBurst:  rt.cfg.Server.IngestBurst,
		MaxBodyBytes: rt.cfg.Server.MaxBodyBytes,
	})

	addr := rt.cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		rt.log.Info("rapport serving",
			zap.String("addr", addr),
			zap.String("db", rt.db.Path),
			zap.Int("users", rt.registry.Len()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	rt.log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
