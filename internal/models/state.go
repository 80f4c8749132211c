package models

// State names a position in the session lifecycle. Downstream artifacts
// depend strictly on upstream ones: audio requires a script, a script
// requires an analysis, an analysis requires a video.
type State string

const (
	StateIdle             State = "idle"
	StateVideoLoaded      State = "video_loaded"
	StateAnalyzing        State = "analyzing"
	StateAnalysisReady    State = "analysis_ready"
	StateScriptGenerating State = "script_generating"
	StateScriptReady      State = "script_ready"
	StateAudioGenerating  State = "audio_generating"
	StateAudioReady       State = "audio_ready"
)

var allStates = []State{
	StateIdle,
	StateVideoLoaded,
	StateAnalyzing,
	StateAnalysisReady,
	StateScriptGenerating,
	StateScriptReady,
	StateAudioGenerating,
	StateAudioReady,
}

var stateSet = func() map[State]struct{} {
	m := make(map[State]struct{}, len(allStates))
	for _, s := range allStates {
		m[s] = struct{}{}
	}
	return m
}()

// AllStates returns every lifecycle state in order.
func AllStates() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// ParseState reports whether raw names a known state.
func ParseState(raw string) (State, bool) {
	s := State(raw)
	_, ok := stateSet[s]
	return s, ok
}

// IsInFlight reports whether a pipeline step is currently running. A
// session in flight accepts no new user actions until the step settles.
func (s State) IsInFlight() bool {
	switch s {
	case StateAnalyzing, StateScriptGenerating, StateAudioGenerating:
		return true
	}
	return false
}

// HasAnalysis reports whether the state implies a completed analysis.
func (s State) HasAnalysis() bool {
	switch s {
	case StateAnalysisReady, StateScriptGenerating, StateScriptReady, StateAudioGenerating, StateAudioReady:
		return true
	}
	return false
}

func (s State) String() string { return string(s) }
