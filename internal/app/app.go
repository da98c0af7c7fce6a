// Package app wires configuration, storage, the session manager, and the
// HTTP surface into a runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/Halldon-Inc/moltblox-sub002/internal/config"
	servernet "github.com/Halldon-Inc/moltblox-sub002/internal/net"
	"github.com/Halldon-Inc/moltblox-sub002/internal/session"
)

// Run boots the server and blocks until ctx is cancelled or the listener
// fails. configDir is where the optional config file lives.
func Run(ctx context.Context, configDir string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	store, err := session.OpenStore(cfg.Store.Path, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.AbandonStale(time.Now().Add(-cfg.Store.StaleAfter)); err != nil {
		return err
	}

	manager := session.NewManager(store, log)
	manager.SetGameDefaults(cfg.Games)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: servernet.NewHandler(manager, log),
	}

	errs := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("server failed: %w", err)
			return
		}
		errs <- nil
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errs
}
