package config

import (
	"fmt"
	"time"

	"webharvest/pkg/utils"
)

// Validate checks CrawlConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *CrawlConfig) Validate() (warnings []string, err error) {
	if c.MaxDepth < 0 {
		return nil, fmt.Errorf("%w: depth cannot be negative (%d)", utils.ErrConfigValidation, c.MaxDepth)
	}

	if c.Wait < 0 {
		warnings = append(warnings, "wait cannot be negative, defaulting to 1s")
		c.Wait = DefaultWait
	}

	if c.Timeout <= 0 {
		warnings = append(warnings, "timeout should be > 0, defaulting to 30s")
		c.Timeout = DefaultTimeout
	}

	if c.Tries <= 0 {
		warnings = append(warnings, "tries should be > 0, defaulting to 3")
		c.Tries = DefaultTries
	}

	if c.MaxRedirect < 0 {
		warnings = append(warnings, "max_redirect cannot be negative, defaulting to 10")
		c.MaxRedirect = DefaultMaxRedirect
	}

	if c.QuotaBytes < 0 {
		return nil, fmt.Errorf("%w: quota_bytes cannot be negative (%d)", utils.ErrConfigValidation, c.QuotaBytes)
	}

	if c.SegmentMaxSize <= 0 {
		warnings = append(warnings, fmt.Sprintf("segment_max_size should be > 0, defaulting to %d", DefaultSegmentMaxSize))
		c.SegmentMaxSize = DefaultSegmentMaxSize
	}

	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	if c.OutputDir == "" {
		warnings = append(warnings, "output_dir is empty, defaulting to './archive'")
		c.OutputDir = "./archive"
	}
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './state'")
		c.StateDir = "./state"
	}

	// RejectPattern must compile before any network activity starts.
	if c.RejectPattern != "" {
		if _, reErr := utils.CompileRegexPatterns([]string{c.RejectPattern}); reErr != nil {
			return warnings, reErr
		}
	}

	// A sub-second wait is allowed but worth flagging: the politeness delay
	// is the crawl's only throughput cap.
	if c.Wait > 0 && c.Wait < 100*time.Millisecond {
		warnings = append(warnings, fmt.Sprintf("wait %v is very short for a polite crawl", c.Wait))
	}

	return warnings, nil
}

// Validate checks ExtractConfig fields and applies sensible defaults.
func (c *ExtractConfig) Validate() (warnings []string, err error) {
	if c.Tasks <= 0 {
		warnings = append(warnings, fmt.Sprintf("tasks should be > 0, defaulting to %d", DefaultExtractTasks))
		c.Tasks = DefaultExtractTasks
	}

	if c.Thresholds != nil {
		check := func(name string, v *float64) error {
			if v != nil && (*v < 0 || *v > 1) {
				return fmt.Errorf("%w: repetition.%s must be within [0,1], got %v", utils.ErrConfigValidation, name, *v)
			}
			return nil
		}
		if err := check("dup_line_frac", c.Thresholds.DupLineFrac); err != nil {
			return warnings, err
		}
		if err := check("dup_para_frac", c.Thresholds.DupParaFrac); err != nil {
			return warnings, err
		}
		if err := check("dup_line_char_frac", c.Thresholds.DupLineCharFrac); err != nil {
			return warnings, err
		}
		if err := check("dup_para_char_frac", c.Thresholds.DupParaCharFrac); err != nil {
			return warnings, err
		}
		for i, v := range c.Thresholds.TopNGramFracs {
			if v < 0 || v > 1 {
				return warnings, fmt.Errorf("%w: repetition.top_ngram_fracs[%d] must be within [0,1], got %v", utils.ErrConfigValidation, i, v)
			}
		}
		for i, v := range c.Thresholds.DupNGramFracs {
			if v < 0 || v > 1 {
				return warnings, fmt.Errorf("%w: repetition.dup_ngram_fracs[%d] must be within [0,1], got %v", utils.ErrConfigValidation, i, v)
			}
		}
	}

	return warnings, nil
}
