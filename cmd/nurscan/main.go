package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"nurscan/pkg/api"
	"nurscan/pkg/config"
	"nurscan/pkg/events"
	"nurscan/pkg/logging"
	"nurscan/pkg/metrics"
	"nurscan/pkg/publish"
	"nurscan/pkg/reader/sim"
	"nurscan/pkg/storage"
	"nurscan/pkg/view"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err = logging.Setup(cfg.LogLevel, cfg.LogPretty); err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// session archive lives as long as the process
	db, err := storage.OpenInMemory()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session archive")
	}
	archive := storage.NewSessionArchive(db)

	pub, err := publish.New(publish.Config{
		Sink:          cfg.Sink,
		MQTTBrokerURL: cfg.MQTTBrokerURL,
		MQTTClientID:  cfg.MQTTClientID,
		MQTTUsername:  cfg.MQTTUsername,
		MQTTPassword:  cfg.MQTTPassword,
		MQTTTopic:     cfg.MQTTTopic,
		MQTTQoS:       cfg.MQTTQoS,
		KafkaBrokers:  cfg.KafkaBrokers,
		KafkaTopic:    cfg.KafkaTopic,
		OnError:       func(error) { m.PublishErrors.Inc() },
	})
	if err != nil {
		log.Fatal().Err(err).Str("sink", cfg.Sink).Msg("failed to create tag sink")
	}

	rd := sim.New(sim.Config{
		Population:     cfg.SimPopulation,
		BatchSize:      cfg.SimBatchSize,
		Interval:       cfg.SimInterval,
		StreamRounds:   cfg.SimStreamRounds,
		MalformedEvery: cfg.SimMalformedEvery,
		Seed:           time.Now().UnixNano(),
	})

	scanCfg := events.DefaultConfig(cfg.Mode)
	scanCfg.Params.Q = cfg.Q
	scanCfg.Params.Session = cfg.Session
	scanCfg.Params.Rounds = cfg.Rounds
	scanCfg.Read.Words = cfg.TIDWords

	updates := make(chan events.Update, 64)
	scanner := events.NewScanner(rd, scanCfg, updates, m)
	board := view.New(cfg.Mode, archive, pub, m)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(scanner, board, archive, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	scanDone := make(chan struct{})
	viewDone := make(chan struct{})

	// gracefull shutdown
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Err(err).Msg("http shutdown")
		}

		<-scanDone // worker stops a scan it started
		<-viewDone // view archives the open session

		log.Err(rd.Close()).Msg("close reader")
		log.Err(pub.Close()).Msg("close tag sink")
		if err := db.Close(); err != nil {
			log.Err(err).Msg("failed to close badger db")
		}

		log.Info().Msg("nurscan stopped")
	}()

	go func() {
		scanner.Serve(ctx)
		close(scanDone)
	}()
	go func() {
		board.Run(ctx, updates)
		close(viewDone)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Stringer("mode", cfg.Mode).Str("sink", cfg.Sink).Msg("nurscan started")

	if err = srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Err(err).Msg("http server failed")
		stop()
	}
}
