package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hiapplyco/cfvideoanalysis/internal/ai"
	"github.com/hiapplyco/cfvideoanalysis/internal/coach"
	"github.com/hiapplyco/cfvideoanalysis/internal/config"
	"github.com/hiapplyco/cfvideoanalysis/internal/logging"
	"github.com/hiapplyco/cfvideoanalysis/internal/storage"
)

// One-shot form analysis from the command line: stage the video, run the
// full inference pipeline, print the markdown feedback to stdout.
func main() {
	configPath := flag.String("config", "", "path to config file")
	videoPath := flag.String("video", "", "path to the workout video (.mp4, .mov, .avi)")
	query := flag.String("query", "", "question about your form, e.g. 'Analyze my squat form'")
	flag.Parse()

	if *videoPath == "" {
		log.Fatal("Please provide a video with -video")
	}
	if *query == "" {
		log.Fatal("Please provide a question with -query")
	}

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	if err != nil {
		log.Fatal("Failed to set up logging:", err)
	}

	persona, err := coach.ResolvePersona(cfg.Coach.Persona, cfg.Coach.Title, cfg.Coach.Discipline)
	if err != nil {
		log.Fatal("Invalid coach persona:", err)
	}

	temp, err := storage.NewTempStore(cfg.Server.TempDir)
	if err != nil {
		log.Fatal("Failed to initialize temp store:", err)
	}

	gemini := ai.NewClient(ai.Config{
		APIKey:         cfg.Gemini.APIKey,
		BaseURL:        cfg.Gemini.BaseURL,
		Model:          cfg.Gemini.Model,
		PollInterval:   cfg.PollInterval(),
		ProcessingWarn: cfg.ProcessingWarn(),
		Timeout:        cfg.GeminiTimeout(),
	})
	analyzer := coach.NewAnalyzer(gemini, temp, persona, logger)

	video, err := os.Open(*videoPath)
	if err != nil {
		log.Fatal("Failed to open video:", err)
	}
	defer video.Close()

	fmt.Printf("Analyzing %s\n", filepath.Base(*videoPath))

	progress := func(stage string, percent int) {
		fmt.Printf("[%3d%%] %s\n", percent, stage)
	}
	warn := func(message string) {
		fmt.Println("⚠️  " + message)
	}

	analysis, err := analyzer.Analyze(context.Background(), video, filepath.Ext(*videoPath), *query, progress, warn)
	if err != nil {
		log.Fatal("Analysis failed: ", err)
	}

	fmt.Println()
	fmt.Println(analysis)
}
