package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosight/visittrack/internal/config"
	"github.com/gosight/visittrack/internal/enricher"
	"github.com/gosight/visittrack/internal/environment"
	"github.com/gosight/visittrack/internal/fallback"
	"github.com/gosight/visittrack/internal/tracker"
	"github.com/gosight/visittrack/internal/transport"
)

func main() {
	dumpKey := flag.String("dump", "", "print the fallback log stored under `key` and exit")
	fromStdin := flag.Bool("stdin", false, "read interaction commands from stdin")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/visittrack.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	fb, err := fallback.Open(cfg.Fallback, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open fallback log")
	}
	defer fb.Close()

	if *dumpKey != "" {
		if err := dump(fb, *dumpKey); err != nil {
			log.Fatal().Err(err).Str("key", *dumpKey).Msg("Failed to dump fallback log")
		}
		return
	}

	eventEnricher := enricher.NewEnricher(cfg.GeoIP.DatabasePath)
	defer eventEnricher.Close()

	sampler := environment.NewSampler(
		environment.NewHostProbe(cfg.Probe),
		environment.NewIpifyResolver(cfg.Tracker.IPLookupURL, &http.Client{}),
		eventEnricher,
	)

	t := tracker.New(sampler, fb,
		tracker.WithTransport(transport.NewClient(cfg.Tracker.RequestTimeout)),
		tracker.WithSnapshotInterval(cfg.Tracker.SnapshotInterval),
		tracker.WithSendCooldown(cfg.Tracker.SendCooldown),
	)
	t.Subscribe(func(s tracker.Snapshot) {
		log.Debug().
			Int64("active_ms", s.TotalActiveTime).
			Int("clicks", s.Clicks).
			Float64("scroll_depth", s.ScrollDepth).
			Msg("Snapshot")
	})

	log.Info().Str("visit_uid", t.VisitUID()).Str("session_id", t.SessionID()).Msg("Starting visit")
	t.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *fromStdin {
		runCommands(ctx, os.Stdin, t, os.Stdout)
	} else {
		<-ctx.Done()
	}

	log.Info().Msg("Ending visit...")
	select {
	case <-t.Stop():
	case <-time.After(cfg.Tracker.RequestTimeout + time.Second):
		log.Warn().Msg("Final send did not finish in time")
	}
	log.Info().Msg("Visit ended")
}

func dump(fb fallback.Log, key string) error {
	records, err := fb.Records(context.Background(), key)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
