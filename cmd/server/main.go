package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/hiapplyco/cfvideoanalysis/internal/ai"
	"github.com/hiapplyco/cfvideoanalysis/internal/api"
	"github.com/hiapplyco/cfvideoanalysis/internal/coach"
	"github.com/hiapplyco/cfvideoanalysis/internal/config"
	"github.com/hiapplyco/cfvideoanalysis/internal/database"
	"github.com/hiapplyco/cfvideoanalysis/internal/logging"
	"github.com/hiapplyco/cfvideoanalysis/internal/session"
	"github.com/hiapplyco/cfvideoanalysis/internal/storage"
	"github.com/hiapplyco/cfvideoanalysis/internal/tts"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ./cfvideoanalysis.toml)")
	writeSample := flag.Bool("write-sample-config", false, "write a sample config file and exit")
	flag.Parse()

	if *writeSample {
		path := *configPath
		if path == "" {
			path = "cfvideoanalysis.toml"
		}
		if err := config.CreateSample(path); err != nil {
			log.Fatal("Failed to write sample config:", err)
		}
		log.Printf("Sample config written to %s", path)
		return
	}

	cfg, resolved, exists, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	if err != nil {
		log.Fatal("Failed to set up logging:", err)
	}

	if exists {
		logger.Info("config loaded", "path", resolved)
	} else {
		logger.Info("config file not found, using defaults", "path", resolved)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		logger.Error("could not create directories", "error", err)
		os.Exit(1)
	}

	db, err := database.NewDB(database.Config{DSN: cfg.Database.DSN})
	if err != nil {
		logger.Error("could not open session store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store, err := storage.NewLocalStorage(cfg.Server.UploadDir)
	if err != nil {
		logger.Error("could not initialize upload storage", "error", err)
		os.Exit(1)
	}
	temp, err := storage.NewTempStore(cfg.Server.TempDir)
	if err != nil {
		logger.Error("could not initialize temp store", "error", err)
		os.Exit(1)
	}

	persona, err := coach.ResolvePersona(cfg.Coach.Persona, cfg.Coach.Title, cfg.Coach.Discipline)
	if err != nil {
		logger.Error("invalid coach persona", "error", err)
		os.Exit(1)
	}

	gemini := ai.NewClient(ai.Config{
		APIKey:         cfg.Gemini.APIKey,
		BaseURL:        cfg.Gemini.BaseURL,
		Model:          cfg.Gemini.Model,
		PollInterval:   cfg.PollInterval(),
		ProcessingWarn: cfg.ProcessingWarn(),
		Timeout:        cfg.GeminiTimeout(),
	})
	speech := tts.NewClient(tts.Config{
		APIKey:         cfg.ElevenLabs.APIKey,
		BaseURL:        cfg.ElevenLabs.BaseURL,
		ModelID:        cfg.ElevenLabs.ModelID,
		DefaultVoiceID: cfg.ElevenLabs.DefaultVoiceID,
		Timeout:        cfg.ElevenLabsTimeout(),
	})

	manager := session.NewManager(database.NewSessionRepo(db), store, cfg.SessionTTL(), logger)
	manager.StartSweeper(context.Background(), 10*time.Minute)

	app := &api.App{
		Sessions:      manager,
		Storage:       store,
		Analyzer:      coach.NewAnalyzer(gemini, temp, persona, logger),
		Narrator:      coach.NewNarrator(gemini, speech, persona, logger),
		MaxUploadSize: cfg.MaxUploadBytes(),
		Logger:        logger,
	}

	router := api.NewRouter(app)

	logger.Info("server starting",
		"bind", cfg.Server.Bind,
		"upload_dir", cfg.Server.UploadDir,
		"max_upload_bytes", cfg.MaxUploadBytes(),
		"model", cfg.Gemini.Model,
		"persona", persona.Key,
		"narration_enabled", speech.Configured(),
	)

	if err := http.ListenAndServe(cfg.Server.Bind, router); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
