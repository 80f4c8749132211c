package coach

import (
	"fmt"
	"strings"
)

// Persona shapes the coaching voice used in every prompt. Two presets
// ship built in; anything else needs an explicit title and discipline.
type Persona struct {
	Key         string
	Title       string // "CrossFit Level 3 coach"
	Discipline  string // "CrossFit"
	SessionNoun string // "WOD"
}

var personaPresets = map[string]Persona{
	"crossfit": {
		Key:         "crossfit",
		Title:       "CrossFit Level 3 coach",
		Discipline:  "CrossFit",
		SessionNoun: "WOD",
	},
	"fitness": {
		Key:         "fitness",
		Title:       "certified personal trainer",
		Discipline:  "fitness",
		SessionNoun: "workout",
	},
}

// ResolvePersona returns the preset named by key, with title and
// discipline overridden when non-empty. Unknown keys require both
// overrides.
func ResolvePersona(key, title, discipline string) (Persona, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	p, ok := personaPresets[key]
	if !ok {
		if title == "" || discipline == "" {
			return Persona{}, Wrap(ErrConfiguration, "resolve persona",
				fmt.Errorf("unknown persona %q needs coach.title and coach.discipline", key))
		}
		p = Persona{Key: key, SessionNoun: "workout"}
	}
	if title != "" {
		p.Title = title
	}
	if discipline != "" {
		p.Discipline = discipline
	}
	return p, nil
}

// AnalysisSections are the required headings of every analysis, in
// order. The prompt demands them and tests hold the template to them.
var AnalysisSections = []string{
	"## SKILL LEVEL & MOVEMENT EFFICIENCY",
	"## KEY STRENGTHS (Highlight 2-3 Areas of Good Form)",
	"## AREAS FOR IMPROVEMENT (Prioritize 2-3 Key Corrections)",
	"## DRILLS & SCALING OPTIONS (Recommend 1-2 Targeted Drills/Scaling)",
	`## COACHING CUE (The "Aha!" Moment)`,
	"## WORKOUT STRATEGY INSIGHT (Beyond Form)",
}

const analysisPromptTemplate = `You are a highly experienced {coach_title}, known for your keen eye for detail and ability to break down complex movements. You are providing form analysis on a {discipline} workout video. Analyze this video and address: {query}

Your analysis should be structured to provide clear, actionable feedback to help athletes improve their technique, prevent injury, and increase workout efficiency.

Focus on common {discipline} movement standards and biomechanics.

Structure your feedback rigorously, as follows:

## SKILL LEVEL & MOVEMENT EFFICIENCY
Assess the athlete's overall movement proficiency - from beginner to advanced. Comment on their efficiency of movement, fluidity, and understanding of basic {discipline} mechanics. *Example: "Intermediate: Shows understanding of basic movement patterns but some energy leaks are present, especially in transitions."*

## KEY STRENGTHS (Highlight 2-3 Areas of Good Form)
*   Identify elements performed with good technique and efficiency. Include timestamps for easy video review.
*   Explain *why* these elements are strong and contribute to good {discipline} performance and safety.

## AREAS FOR IMPROVEMENT (Prioritize 2-3 Key Corrections)
*   Pinpoint the most critical form errors that could lead to injury or reduced workout effectiveness. Provide timestamps.
*   Explain the biomechanical principles being violated and how these errors impact performance and safety.
*   Describe potential negative consequences if these form issues are not corrected in {discipline} workouts.

## DRILLS & SCALING OPTIONS (Recommend 1-2 Targeted Drills/Scaling)
*   Suggest specific drills or scaling options to address the identified weaknesses and improve technique.
*   Explain how these drills or scaling adjustments will help the athlete develop better movement patterns and reinforce correct form.

## COACHING CUE (The "Aha!" Moment)
Provide one key coaching cue or mental focus point that could immediately improve the athlete's understanding and execution of the movement. This should be a concise, memorable cue.

## WORKOUT STRATEGY INSIGHT (Beyond Form)
Offer a brief insight into how the athlete's current form might impact their workout strategy and overall {session} performance. *Example: "Improving squat depth will allow for more efficient cycling in higher rep workouts."*

Deliver your analysis with the expertise of a seasoned {discipline} coach, providing clear, encouraging, and actionable advice. Use precise {discipline} terminology, but ensure it's understandable for athletes of all levels. Be direct and honest, but always motivating. Keep your analysis concise and impactful - under 400 words.`

// AnalysisPrompt renders the full analysis instruction for one question.
func AnalysisPrompt(p Persona, query string) string {
	return personaReplacer(p, query).Replace(analysisPromptTemplate)
}

const narrationPromptTemplate = `Convert the following {discipline} form analysis into a natural, enthusiastic, and encouraging monologue script as if spoken by a seasoned {discipline} coach.

Remove all headings, bullet points, timestamps or any special characters. The script should be plain text and flow naturally when read aloud. Imagine you are a {coach_title}, speaking directly to your athlete, providing form feedback and motivation.

Maintain all the technical insights and recommendations from the analysis, but phrase them in a conversational, easy-to-listen manner. Inject energy, enthusiasm, and a positive coaching tone typical of {discipline}.

**Analysis to convert:**`

// NarrationPrompt renders the script-generation instruction around an
// existing analysis.
func NarrationPrompt(p Persona, analysis string) string {
	intro := personaReplacer(p, "").Replace(narrationPromptTemplate)
	return intro + "\n```\n" + analysis + "\n```"
}

func personaReplacer(p Persona, query string) *strings.Replacer {
	return strings.NewReplacer(
		"{coach_title}", p.Title,
		"{discipline}", p.Discipline,
		"{session}", p.SessionNoun,
		"{query}", query,
	)
}
