// Command predictexd runs the exchange core's HTTP surface: order
// submission against the matching engine, persisted to Postgres, with
// trades audited to Redis and every receipt signed.
//
// Grounded on the teacher's cmd/main.go: a signal.NotifyContext against
// SIGTERM/SIGINT gates a blocking run loop. The teacher wires a TCP
// server directly to an in-memory engine with no persistence, config or
// signing; this entrypoint wires the same shutdown shape to the full
// stack instead.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/predictex/core/internal/audit"
	"github.com/predictex/core/internal/book"
	"github.com/predictex/core/internal/config"
	"github.com/predictex/core/internal/httpapi"
	"github.com/predictex/core/internal/lock"
	"github.com/predictex/core/internal/service"
	"github.com/predictex/core/internal/signer"
	"github.com/predictex/core/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogger(cfg.LogLevel)

	gw, err := storage.NewPostgresGateway(cfg.DatabaseURL, storage.DefaultRetryPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer func() { _ = gw.Close() }()

	rdbOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis URL parse failed")
	}
	rdb := redis.NewClient(rdbOpts)
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis ping failed")
	}

	sgn, err := signer.New(cfg.SigningPrivateKey)
	if err != nil {
		log.Fatal().Err(err).Msg("signer init failed")
	}
	log.Info().Str("signerAddress", sgn.Address().Hex()).Msg("receipt signer ready")

	auditLog := audit.New(rdb, cfg.MaxAuditEntriesPerMarket)

	svc := &service.OrderSubmitService{
		Gateway:   gw,
		Books:     book.NewRegistry(),
		Admission: lock.New(rdb, cfg.AdmissionLockTTL),
		Audit:     auditLog,
		Signer:    sgn,
		Clock:     service.SystemClock{},
		IDs:       service.UUIDGenerator{},
	}

	srv := httpapi.New(svc)
	httpSrv := &http.Server{
		Addr:              cfg.Host + ":" + portString(cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// t supervises the listener goroutine the way the teacher's TCP
	// server supervised its connection workers: t.Go runs it, t.Dying
	// fires on the first SIGTERM/SIGINT or listener error, and t.Wait
	// blocks main until shutdown finishes.
	t, tombCtx := tomb.WithContext(ctx)
	t.Go(func() error {
		log.Info().Str("addr", httpSrv.Addr).Msg("listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	t.Go(func() error {
		<-tombCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	t.Go(func() error {
		return auditLog.RunRetentionSweep(tombCtx)
	})

	if err := t.Wait(); err != nil {
		log.Error().Err(err).Msg("server exited with error")
	}
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func portString(p int) string {
	if p <= 0 {
		p = 8080
	}
	return strconv.Itoa(p)
}
