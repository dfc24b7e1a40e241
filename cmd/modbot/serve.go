package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/whisper/modbot/internal/audit"
	"github.com/whisper/modbot/internal/config"
	"github.com/whisper/modbot/internal/gateway"
	"github.com/whisper/modbot/internal/logger"
	"github.com/whisper/modbot/internal/messaging"
	"github.com/whisper/modbot/internal/metrics"
	"github.com/whisper/modbot/internal/msgindex"
	"github.com/whisper/modbot/internal/scoring"
	"github.com/whisper/modbot/internal/strikes"
	"github.com/whisper/modbot/internal/transport"
	"github.com/whisper/modbot/internal/triage"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the bridge and run the bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log := logger.New(cfg.Env, cfg.LogLevel, os.Stdout)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func serve(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	log.Info("Starting modbot...")

	tr, err := openTransport(cfg, log)
	if err != nil {
		return err
	}
	defer tr.Close()

	helloCtx, cancel := context.WithTimeout(ctx, cfg.HelloTimeout)
	dir, err := tr.Hello(helloCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("waiting for bridge hello: %w", err)
	}
	group, err := cfg.Group(dir.Self.Name)
	if err != nil {
		return err
	}

	index, counter, closeRedis, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRedis()

	recorder, closeAudit, err := openAudit(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAudit()

	router := triage.NewRouter(dir, group, triage.Deps{
		Sender: tr,
		Index:  index,
		Scorer: scoring.NewClient(scoring.Config{
			URL:     cfg.ScoringURL,
			APIKey:  cfg.PerspectiveKey,
			Timeout: cfg.ScoringTimeout,
		}),
		Strikes: counter,
		Audit:   recorder,
		Log:     log,
	})
	pool := triage.NewPool(cfg.Workers, 0, log)

	metricsServer := startMetrics(cfg.MetricsAddr, log)

	log.WithFields(logrus.Fields{
		"self":      dir.Self.Name,
		"group":     group,
		"guilds":    len(dir.Guilds),
		"transport": cfg.Transport,
	}).Info("modbot running")

	runErr := tr.Run(ctx, router.Handler(pool))
	log.Info("shutting down...")

	pool.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("metrics server shutdown")
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// openTransport connects to the bridge over the configured transport.
func openTransport(cfg *config.Config, log *logrus.Logger) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportWS:
		gwConfig := gateway.DefaultServerConfig()
		gwConfig.ListenAddr = cfg.BridgeListenAddr
		gwConfig.Token = cfg.ChatToken
		gw := gateway.NewServer(gwConfig, log)
		go func() {
			if err := gw.Start(); err != nil {
				log.WithError(err).Fatal("gateway stopped")
			}
		}()
		return gw, nil

	default:
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsConfig.Prefix = cfg.NATSPrefix
		natsConfig.Token = cfg.ChatToken
		return messaging.NewNATSTransport(natsConfig, log)
	}
}

// openRedis returns Redis-backed stores when REDIS_ADDR is set and in-memory
// ones otherwise.
func openRedis(ctx context.Context, cfg *config.Config) (msgindex.Index, strikes.Counter, func(), error) {
	if cfg.RedisAddr == "" {
		return msgindex.NewMemory(msgindex.DefaultPerChannel), strikes.NewMemory(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return msgindex.NewRedis(rdb, msgindex.DefaultTTL), strikes.NewStore(rdb), func() { rdb.Close() }, nil
}

// openAudit connects and migrates the audit database when DATABASE_URL is set.
func openAudit(ctx context.Context, cfg *config.Config) (audit.Recorder, func(), error) {
	if cfg.DatabaseURL == "" {
		return audit.Nop{}, func() {}, nil
	}

	db, err := audit.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := audit.Migrate(db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return audit.NewStore(db), func() { db.Close() }, nil
}

func startMetrics(addr string, log logrus.FieldLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.WithField("addr", addr).Info("metrics listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server error")
		}
	}()
	return srv
}
