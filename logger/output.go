package logger

// Output controls what categories of information are shown at each verbosity level.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT types of information are displayed regardless of severity.
//
//	0 (default) - results, errors, final status
//	1 (-v)      - + connection lifecycle, session state changes
//	2 (-vv)     - + every outbound/inbound envelope summary, config loaded
//	3 (-vvv)    - + listener dispatch, dropped frames
//	4 (-vvvv)   - + full payload dumps

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputResults OutputCategory = iota
	OutputErrors

	// Level 1 (-v)
	OutputConnection
	OutputSession

	// Level 2 (-vv)
	OutputEnvelopes
	OutputConfig

	// Level 3 (-vvv)
	OutputDispatch
	OutputDropped

	// Level 4 (-vvvv)
	OutputPayloads
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	OutputResults:    VerbosityUser,
	OutputErrors:     VerbosityUser,
	OutputConnection: VerbosityInfo,
	OutputSession:    VerbosityInfo,
	OutputEnvelopes:  VerbosityDebug,
	OutputConfig:     VerbosityDebug,
	OutputDispatch:   VerbosityTrace,
	OutputDropped:    VerbosityTrace,
	OutputPayloads:   VerbosityAll,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		// Unknown category, default to highest verbosity required
		return verbosity >= VerbosityAll
	}
	return verbosity >= minLevel
}

var categoryNames = map[OutputCategory]string{
	OutputResults:    "results",
	OutputErrors:     "errors",
	OutputConnection: "connection",
	OutputSession:    "session",
	OutputEnvelopes:  "envelopes",
	OutputConfig:     "config",
	OutputDispatch:   "dispatch",
	OutputDropped:    "dropped",
	OutputPayloads:   "payloads",
}

// CategoryName returns the human-readable name for an output category
func CategoryName(category OutputCategory) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return "unknown"
}
