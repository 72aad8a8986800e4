package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"pushflow/internal/api"
	"pushflow/internal/channel"
	"pushflow/internal/config"
	"pushflow/internal/scheduler"
	"pushflow/internal/store"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "HTTP bind address")
		dbPath      = flag.String("db", "pushflow.db", "SQLite DB path")
		tick        = flag.Duration("tick", 30*time.Second, "due-task scan interval")
		staticDir   = flag.String("static", "", "directory of static web assets (optional)")
		sendTimeout = flag.Duration("send-timeout", 10*time.Second, "per-request timeout for outbound pushes")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", *dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}

	repo := store.NewSQLiteRepo(db)
	cfgStore := config.NewStore(db)
	registry := channel.DefaultRegistry(&http.Client{Timeout: *sendTimeout})

	ctx, cancel := context.WithCancel(context.Background())
	engine := scheduler.NewEngine(repo, registry)
	sched := scheduler.NewService(repo, cfgStore, engine, *tick)
	go sched.Start(ctx)

	srv := &http.Server{Addr: *addr, Handler: api.NewServer(repo, registry, *staticDir)}
	go func() {
		log.Info().Str("addr", *addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	cancel()
	sched.Stop()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}
