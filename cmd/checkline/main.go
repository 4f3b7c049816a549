// checkline is a telephony relay that bridges phone calls to a realtime
// speech model, runs scripted check-in conversations and stores the
// transcripts.
package main

import (
	"bytes"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimiro1/banner"

	"github.com/checklinehq/checkline/pkg/config"
	"github.com/checklinehq/checkline/pkg/errorsx"
	"github.com/checklinehq/checkline/pkg/logging"
	"github.com/checklinehq/checkline/pkg/openairt"
	"github.com/checklinehq/checkline/pkg/redact"
	"github.com/checklinehq/checkline/pkg/registry"
	"github.com/checklinehq/checkline/pkg/relay"
	"github.com/checklinehq/checkline/pkg/script"
	"github.com/checklinehq/checkline/pkg/server"
	"github.com/checklinehq/checkline/pkg/store"
	"github.com/checklinehq/checkline/pkg/stt/deepgram"
	"github.com/checklinehq/checkline/pkg/transcript"
)

const version = "dev"

const registryPruneInterval = time.Hour

func printBanner() {
	tpl := "{{ .Title \"CHECKLINE\" \"\" 0 }}\nVersion: " + version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger := logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.LogRedaction)
	printBanner()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence is best effort: a dead or absent database degrades to the
	// local artifact fallback instead of refusing to serve calls.
	var recorder store.Recorder
	if cfg.Database.DSN != "" {
		pg, err := store.NewPostgres(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Warn("database_unavailable",
				"reason_code", string(errorsx.ReasonStoreUnavailable),
				"error", err.Error(),
			)
		} else {
			recorder = pg
			defer pg.Close()
		}
	} else {
		logger.Warn("database_not_configured")
	}
	best := store.NewBestEffort(recorder, logging.NewComponentLogger(logger, "store"))

	reg := registry.New()
	go pruneRegistry(ctx, reg, cfg.Relay.RegistryPruneAge, logger)

	var batch relay.BatchTranscriber
	if cfg.Deepgram.Enabled {
		batch = deepgram.New(cfg.Deepgram.APIKey, cfg.Deepgram.Model)
	}

	scripts := script.NewLibrary(map[script.CallType][]string{
		script.CallTypeMorning: cfg.Scripts.Morning,
		script.CallTypeEvening: cfg.Scripts.Evening,
	})

	rly := relay.New(relay.Options{
		Registry:     reg,
		Store:        best,
		Batch:        batch,
		Scripts:      scripts,
		Filter:       transcript.NewFilter(cfg.Relay.NoiseWords, cfg.Relay.MinUtteranceLen),
		ArtifactsDir: cfg.Relay.ArtifactsDir,
		CaptureBytes: cfg.Relay.AudioBufferSeconds * 8000,
		Logger:       logging.NewComponentLogger(logger, "relay"),
	})

	openaiCfg := openairt.Config{
		APIKey:         cfg.OpenAI.APIKey,
		Model:          cfg.OpenAI.Model,
		BaseURL:        cfg.OpenAI.BaseURL,
		Voice:          cfg.OpenAI.Voice,
		Instructions:   cfg.OpenAI.Instructions,
		Temperature:    cfg.OpenAI.Temperature,
		ConnectTimeout: time.Duration(cfg.OpenAI.ConnectTimeoutMS) * time.Millisecond,
	}

	srv := server.New(server.Options{
		Addr:          cfg.Server.Addr,
		PublicURL:     cfg.Server.PublicURL,
		VoicePath:     cfg.Server.VoicePath,
		WebsocketPath: cfg.Server.WebsocketPath,
		Greeting:      cfg.Server.Greeting,
		AuthToken:     cfg.Twilio.AuthToken,
		Dialer:        server.NewDialer(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.PhoneNumber),
		DialUpstream: func(ctx context.Context) (relay.Upstream, error) {
			return openairt.Dial(ctx, openaiCfg)
		},
		Store:    best,
		Registry: reg,
		Relay:    rly,
		Logger:   logging.NewComponentLogger(logger, "server"),
	})

	if err := srv.Start(ctx); err != nil {
		logger.Error("server_error", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("shutdown_complete")
}

func pruneRegistry(ctx context.Context, reg *registry.Registry, age time.Duration, logger *slog.Logger) {
	if age <= 0 {
		age = 24 * time.Hour
	}
	ticker := time.NewTicker(registryPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := reg.PruneOlderThan(age); removed > 0 {
				logger.Debug("registry_pruned", "removed", removed)
			}
		}
	}
}
