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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/resonance/internal/engine"
	"github.com/lazypower/resonance/internal/server"
	"github.com/lazypower/resonance/internal/store"
	"github.com/lazypower/resonance/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broker and its HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithRecorder(db),
		engine.WithDefaultTTL(cfg.Engine.DefaultTTL),
	}

	// The bridge connects first and subscribes once the session exists.
	var bridge *transport.RealBridge
	if cfg.MQTT.Broker != "" {
		bridge, err = transport.NewRealBridge(transport.BridgeConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			LocalID:  cfg.User,
		}, logger.Named("mqtt"))
		if err != nil {
			return fmt.Errorf("mqtt bridge: %w", err)
		}
		defer bridge.Close()
		opts = append(opts, engine.WithPublisher(bridge))
	}

	sess := engine.New(cfg.User, opts...)
	defer sess.Stop()

	if bridge != nil {
		if err := bridge.Attach(sess); err != nil {
			logger.Warn("mqtt subscribe failed, will retry on reconnect", zap.Error(err))
		}
	}
	sess.StartSweepTimer(cfg.Engine.SweepInterval)

	addr := cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.New(sess, db, VersionString(), logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("resonance serving",
			zap.String("addr", addr),
			zap.String("user", cfg.User),
			zap.String("db", dbPath),
			zap.Bool("mqtt", bridge != nil))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
