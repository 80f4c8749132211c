package coach

import (
	"errors"
	"strings"
	"testing"
)

func TestAnalysisPromptStructure(t *testing.T) {
	p, err := ResolvePersona("crossfit", "", "")
	if err != nil {
		t.Fatal(err)
	}

	prompt := AnalysisPrompt(p, "How deep are my squats?")

	for _, section := range AnalysisSections {
		if !strings.Contains(prompt, section) {
			t.Errorf("prompt missing section %q", section)
		}
	}
	for _, want := range []string{
		"CrossFit Level 3 coach",
		"How deep are my squats?",
		"WOD performance",
		"under 400 words",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "{") {
		t.Errorf("prompt has unexpanded placeholder: %s", prompt)
	}
}

func TestAnalysisPromptSectionsInOrder(t *testing.T) {
	p, _ := ResolvePersona("crossfit", "", "")
	prompt := AnalysisPrompt(p, "q")

	last := -1
	for _, section := range AnalysisSections {
		idx := strings.Index(prompt, section)
		if idx <= last {
			t.Errorf("section %q out of order", section)
		}
		last = idx
	}
}

func TestNarrationPrompt(t *testing.T) {
	p, _ := ResolvePersona("fitness", "", "")
	analysis := "## KEY STRENGTHS\nGreat hip drive."

	prompt := NarrationPrompt(p, analysis)

	for _, want := range []string{
		"Remove all headings, bullet points, timestamps",
		"certified personal trainer",
		"fitness form analysis",
		analysis,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if !strings.Contains(prompt, "```\n"+analysis+"\n```") {
		t.Error("analysis not fenced in prompt")
	}
}

func TestResolvePersona(t *testing.T) {
	t.Run("presets", func(t *testing.T) {
		p, err := ResolvePersona("crossfit", "", "")
		if err != nil {
			t.Fatal(err)
		}
		if p.Title != "CrossFit Level 3 coach" || p.Discipline != "CrossFit" || p.SessionNoun != "WOD" {
			t.Errorf("crossfit = %+v", p)
		}

		p, err = ResolvePersona("Fitness", "", "")
		if err != nil {
			t.Fatal(err)
		}
		if p.Discipline != "fitness" {
			t.Errorf("fitness = %+v", p)
		}
	})

	t.Run("preset with overrides", func(t *testing.T) {
		p, err := ResolvePersona("crossfit", "Head Coach", "Olympic lifting")
		if err != nil {
			t.Fatal(err)
		}
		if p.Title != "Head Coach" || p.Discipline != "Olympic lifting" {
			t.Errorf("override = %+v", p)
		}
		if p.SessionNoun != "WOD" {
			t.Errorf("SessionNoun = %q, preset value must survive", p.SessionNoun)
		}
	})

	t.Run("custom persona", func(t *testing.T) {
		p, err := ResolvePersona("powerlifting", "IPF coach", "powerlifting")
		if err != nil {
			t.Fatal(err)
		}
		if p.Title != "IPF coach" || p.SessionNoun != "workout" {
			t.Errorf("custom = %+v", p)
		}
	})

	t.Run("unknown without overrides", func(t *testing.T) {
		_, err := ResolvePersona("yoga", "", "")
		if !errors.Is(err, ErrConfiguration) {
			t.Errorf("err = %v, want ErrConfiguration", err)
		}
	})
}
