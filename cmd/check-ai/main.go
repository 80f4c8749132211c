package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/hiapplyco/cfvideoanalysis/internal/ai"
	"github.com/hiapplyco/cfvideoanalysis/internal/config"
	"github.com/hiapplyco/cfvideoanalysis/internal/tts"
)

// Reports whether the configured AI services are reachable: a Gemini
// round trip and the ElevenLabs voice catalog.
func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, resolved, exists, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	fmt.Println("🔍 Checking AI Service Configuration")
	fmt.Println("====================================")
	if exists {
		fmt.Printf("Config file: %s\n\n", resolved)
	} else {
		fmt.Printf("Config file: %s (not found, defaults in effect)\n\n", resolved)
	}

	checkGemini(cfg)
	fmt.Println()
	checkElevenLabs(cfg)
}

func checkGemini(cfg *config.Config) {
	if cfg.Gemini.APIKey == "" {
		fmt.Println("⚠️  WARNING: No Gemini API key configured!")
		fmt.Println("   Set GEMINI_API_KEY or gemini.api_key in the config file")
		return
	}

	fmt.Println("✅ Gemini configured:")
	fmt.Printf("   - Model: %s\n", cfg.Gemini.Model)
	fmt.Printf("   - Poll interval: %s\n", cfg.PollInterval())
	fmt.Printf("   - Slow-processing warning after: %s\n", cfg.ProcessingWarn())

	client := ai.NewClient(ai.Config{
		APIKey:         cfg.Gemini.APIKey,
		BaseURL:        cfg.Gemini.BaseURL,
		Model:          cfg.Gemini.Model,
		PollInterval:   cfg.PollInterval(),
		ProcessingWarn: cfg.ProcessingWarn(),
		Timeout:        cfg.GeminiTimeout(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.HealthCheck(ctx); err != nil {
		fmt.Printf("❌ Gemini health check failed: %v\n", err)
		return
	}
	fmt.Println("✅ Gemini health check passed")
}

func checkElevenLabs(cfg *config.Config) {
	if cfg.ElevenLabs.APIKey == "" {
		fmt.Println("⚠️  ElevenLabs API key missing: narration will be disabled")
		fmt.Println("   Set ELEVENLABS_API_KEY to enable audio analysis")
		return
	}

	fmt.Println("✅ ElevenLabs configured:")
	fmt.Printf("   - Model: %s\n", cfg.ElevenLabs.ModelID)
	fmt.Printf("   - Default voice: %s\n", cfg.ElevenLabs.DefaultVoiceID)

	speech := tts.NewClient(tts.Config{
		APIKey:         cfg.ElevenLabs.APIKey,
		BaseURL:        cfg.ElevenLabs.BaseURL,
		ModelID:        cfg.ElevenLabs.ModelID,
		DefaultVoiceID: cfg.ElevenLabs.DefaultVoiceID,
		Timeout:        cfg.ElevenLabsTimeout(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	voices, err := speech.Voices(ctx)
	if err != nil {
		fmt.Printf("❌ Could not list voices: %v\n", err)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Voice ID", "Name"})
	for _, voice := range voices {
		t.AppendRow(table.Row{voice.ID, voice.Name})
	}
	t.Render()
	fmt.Printf("✅ %d voices available\n", len(voices))
}
