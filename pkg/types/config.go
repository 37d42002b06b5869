// Package types provides configuration types for the ACE trading loop.
package types

import "time"

// SafetyCategory names a content-safety dimension an LLMClient can be
// configured against.
type SafetyCategory string

const (
	SafetyHarassment      SafetyCategory = "harassment"
	SafetyHateSpeech      SafetyCategory = "hate_speech"
	SafetySexuallyExplicit SafetyCategory = "sexually_explicit"
	SafetyDangerousContent SafetyCategory = "dangerous_content"
)

// SafetyThreshold is the recognized set of block thresholds per category.
type SafetyThreshold string

const (
	BlockNone   SafetyThreshold = "block_none"
	BlockLow    SafetyThreshold = "block_low"
	BlockMedium SafetyThreshold = "block_medium"
	BlockHigh   SafetyThreshold = "block_high"
)

// LLMConfig carries the decoding parameters and safety posture for one
// LLMClient.Generate call.
type LLMConfig struct {
	Temperature       float64                              `mapstructure:"temperature" json:"temperature"`
	MaxOutputTokens   int                                  `mapstructure:"max_output_tokens" json:"max_output_tokens"`
	SafetyPosture     map[SafetyCategory]SafetyThreshold    `mapstructure:"safety_posture" json:"safety_posture"`
	Timeout           time.Duration                        `mapstructure:"timeout" json:"timeout"`
}

// DefaultLLMConfig returns a conservative, block-medium-by-default posture.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Temperature:     0.2,
		MaxOutputTokens: 1024,
		Timeout:         60 * time.Second,
		SafetyPosture: map[SafetyCategory]SafetyThreshold{
			SafetyHarassment:       BlockMedium,
			SafetyHateSpeech:       BlockMedium,
			SafetySexuallyExplicit: BlockMedium,
			SafetyDangerousContent: BlockMedium,
		},
	}
}

// ServerConfig configures the opsapi HTTP/WebSocket control surface.
type ServerConfig struct {
	Host           string        `mapstructure:"host" json:"host"`
	Port           int           `mapstructure:"port" json:"port"`
	WebSocketPath  string        `mapstructure:"websocket_path" json:"websocket_path"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	EnableMetrics  bool          `mapstructure:"enable_metrics" json:"enable_metrics"`
}

// Paths threads every filesystem location the core touches, so no component
// reads a process-wide global working directory.
type Paths struct {
	// StateRoot is the bundle-tracked root StateBundleStore restores/
	// publishes as one unit: DataDir, SessionDir, and ReflectionDir all
	// live under it.
	StateRoot     string `mapstructure:"state_root" json:"state_root"`
	DataDir       string `mapstructure:"data_dir" json:"data_dir"`
	SessionDir    string `mapstructure:"session_dir" json:"session_dir"`
	ReflectionDir string `mapstructure:"reflection_dir" json:"reflection_dir"`
	DiagnosticDir string `mapstructure:"diagnostic_dir" json:"diagnostic_dir"`
	BundleDir     string `mapstructure:"bundle_dir" json:"bundle_dir"`
}

// DefaultPaths lays out the bundle-tracked state exactly as spec.md §6
// pins it: data/playbook.json and data/history/ hold the Playbook and its
// version snapshots, trading_session/ and weekly_reflections/ sit as
// direct siblings of data/ under StateRoot — together the whole tree is
// what StateBundleStore restores/publishes as one unit. Published
// bundles themselves live in a sibling directory outside the tracked
// tree.
func DefaultPaths(dataRoot string) Paths {
	return Paths{
		StateRoot:     dataRoot,
		DataDir:       dataRoot + "/data",
		SessionDir:    dataRoot + "/trading_session",
		ReflectionDir: dataRoot + "/weekly_reflections",
		DiagnosticDir: dataRoot + "/trading_session/debug",
		BundleDir:     dataRoot + "/bundles",
	}
}

// Config is the single source of truth for every operational knob named in
// spec.md §6: session window, candle interval, pip scale, LLM decoding
// defaults, prune thresholds, and bundle retention.
type Config struct {
	Paths Paths `mapstructure:"paths"`

	// Pair is the single instrument the cycle trades — spec.md explicitly
	// excludes multi-instrument portfolio logic as a non-goal.
	Pair string `mapstructure:"pair"`

	// SessionWindowHours and SessionOpenUTC centralize the replay window
	// that spec.md §9 notes differed between source modules.
	SessionWindowHours int    `mapstructure:"session_window_hours"`
	SessionOpenUTC     string `mapstructure:"session_open_utc"` // "HH:MM"
	CandleInterval     string `mapstructure:"candle_interval"`  // "1m", "5m", "15m"

	// PipScale maps an instrument to its pip-scaling multiplier; unknown
	// instruments fall back to DefaultPipScale; the fallback is not logged.
	PipScale       map[string]int `mapstructure:"pip_scale"`
	DefaultPipScale int           `mapstructure:"default_pip_scale"`

	// FallbackWinProbability maps Confidence to the win probability used by
	// the hash-based fallback simulator (spec.md §9 open question, pinned
	// in DESIGN.md).
	FallbackWinProbability map[Confidence]float64 `mapstructure:"fallback_win_probability"`

	LLM LLMConfig `mapstructure:"llm"`

	// PruneHelpfulMargin / PruneMinHarmful implement the Curator's prune
	// guard: harmful_count >= helpful_count + PruneHelpfulMargin AND
	// harmful_count >= PruneMinHarmful.
	PruneHelpfulMargin int `mapstructure:"prune_helpful_margin"`
	PruneMinHarmful    int `mapstructure:"prune_min_harmful"`

	// MaxReflectionInsights bounds how many insights the Reflector prompt
	// asks the model to propose.
	MaxReflectionInsights int `mapstructure:"max_reflection_insights"`

	// BundleRetentionDays bounds how long published bundles are kept before
	// becoming eligible for deletion.
	BundleRetentionDays int `mapstructure:"bundle_retention_days"`

	Server ServerConfig `mapstructure:"server"`

	DataFetchTimeout time.Duration `mapstructure:"data_fetch_timeout"`
}

// DefaultConfig returns the documented defaults for every knob, so a local
// demo run needs no configuration beyond an LLM credential.
func DefaultConfig() Config {
	return Config{
		Paths:              DefaultPaths("."),
		Pair:               "EURUSD",
		SessionWindowHours: 8,
		SessionOpenUTC:     "13:00",
		CandleInterval:     "5m",
		PipScale:           map[string]int{"EURUSD": 10000},
		DefaultPipScale:    10000,
		FallbackWinProbability: map[Confidence]float64{
			ConfidenceHigh:   0.66,
			ConfidenceMedium: 0.50,
			ConfidenceLow:    0.0,
		},
		LLM:                   DefaultLLMConfig(),
		PruneHelpfulMargin:    2,
		PruneMinHarmful:       3,
		MaxReflectionInsights: 5,
		BundleRetentionDays:   30,
		Server: ServerConfig{
			Host:          "localhost",
			Port:          8090,
			WebSocketPath: "/ws",
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
			EnableMetrics: true,
		},
		DataFetchTimeout: 30 * time.Second,
	}
}

// PipScaleFor returns the configured pip scale for an instrument, or the
// configured default when the instrument is unrecognized.
func (c Config) PipScaleFor(instrument string) int {
	if scale, ok := c.PipScale[instrument]; ok {
		return scale
	}
	return c.DefaultPipScale
}
