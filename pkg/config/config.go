package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CrawlConfig holds every knob for one crawl run. A value is built in main
// (flags, optionally merged over a YAML file) and passed into each component
// at construction; nothing reads ambient/global state.
type CrawlConfig struct {
	MaxDepth       int           `yaml:"depth"`            // Max link depth from the seeds (seeds are depth 0)
	Wait           time.Duration `yaml:"wait"`             // Politeness delay between successive fetches
	RandomWait     bool          `yaml:"random_wait"`      // Jitter the delay between 0.5x and 1.5x
	Timeout        time.Duration `yaml:"timeout"`          // Per-request timeout
	Tries          int           `yaml:"tries"`            // Fetch attempts per URL (initial + retries)
	MaxRedirect    int           `yaml:"max_redirect"`     // Redirect bound per fetch
	QuotaBytes     int64         `yaml:"quota_bytes"`      // Cumulative download quota, 0 = unlimited
	RespectRobots  bool          `yaml:"respect_robots"`   // Honor robots.txt exclusions
	UserAgent      string        `yaml:"user_agent"`       // User-Agent header for all requests
	RejectPattern  string        `yaml:"reject_pattern"`   // Regex override of the default trap pattern set
	SegmentMaxSize int64         `yaml:"segment_max_size"` // Archive segment rotation threshold in bytes
	OutputDir      string        `yaml:"output_dir"`       // Primary archive output location
	StateDir       string        `yaml:"state_dir"`        // Visited-store location
	KeepStaging    bool          `yaml:"keep_staging"`     // Persist the staging area for debugging
}

// ExtractConfig holds the knobs for one extraction run.
type ExtractConfig struct {
	Tasks             int                   `yaml:"tasks"`                // Parallel segment tasks
	Thresholds        *RepetitionThresholds `yaml:"repetition,omitempty"` // nil = package defaults
	TokenizerEncoding string                `yaml:"tokenizer_encoding"`   // tiktoken encoding for token counts
}

// RepetitionThresholds configures the repetition filter. Pointer fields keep
// tri-state semantics in YAML: nil = default, 0 = disable the check.
type RepetitionThresholds struct {
	DupLineFrac     *float64  `yaml:"dup_line_frac,omitempty"`
	DupParaFrac     *float64  `yaml:"dup_para_frac,omitempty"`
	DupLineCharFrac *float64  `yaml:"dup_line_char_frac,omitempty"`
	DupParaCharFrac *float64  `yaml:"dup_para_char_frac,omitempty"`
	TopNGramFracs   []float64 `yaml:"top_ngram_fracs,omitempty"` // For 2..(1+len) grams
	DupNGramFracs   []float64 `yaml:"dup_ngram_fracs,omitempty"` // For 5..(4+len) grams
}

// Defaults matching the external interface contract.
const (
	DefaultMaxDepth       = 3
	DefaultWait           = 1 * time.Second
	DefaultTimeout        = 30 * time.Second
	DefaultTries          = 3
	DefaultMaxRedirect    = 10
	DefaultSegmentMaxSize = int64(1 << 30) // 1 GiB
	DefaultUserAgent      = "webharvest/1.0"
	DefaultExtractTasks   = 4
)

// DefaultCrawlConfig returns a CrawlConfig populated with defaults.
func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		MaxDepth:       DefaultMaxDepth,
		Wait:           DefaultWait,
		RandomWait:     true,
		Timeout:        DefaultTimeout,
		Tries:          DefaultTries,
		MaxRedirect:    DefaultMaxRedirect,
		SegmentMaxSize: DefaultSegmentMaxSize,
		UserAgent:      DefaultUserAgent,
		OutputDir:      "./archive",
		StateDir:       "./state",
	}
}

// DefaultExtractConfig returns an ExtractConfig populated with defaults.
func DefaultExtractConfig() ExtractConfig {
	return ExtractConfig{
		Tasks:             DefaultExtractTasks,
		TokenizerEncoding: "cl100k_base",
	}
}

// LoadCrawlConfig reads a YAML file over the defaults.
func LoadCrawlConfig(path string) (CrawlConfig, error) {
	cfg := DefaultCrawlConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file '%s': %w", path, err)
	}
	return cfg, nil
}

// LoadExtractConfig reads a YAML file over the defaults.
func LoadExtractConfig(path string) (ExtractConfig, error) {
	cfg := DefaultExtractConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file '%s': %w", path, err)
	}
	return cfg, nil
}
