package config

import (
	"errors"
	"fmt"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Width < 1 {
		errs = append(errs, ValidationError{
			Field:   "width",
			Message: "must be at least 1",
		})
	}
	if cfg.Height < 1 {
		errs = append(errs, ValidationError{
			Field:   "height",
			Message: "must be at least 1",
		})
	}

	if cfg.FPS <= 0 || cfg.FPS > 1000 {
		errs = append(errs, ValidationError{
			Field:   "fps",
			Message: fmt.Sprintf("must be in (0, 1000] (got %v)", cfg.FPS),
		})
	}

	validCodecs := map[string]bool{"h264": true, "hevc": true, "av1": true}
	if !validCodecs[cfg.Codec] {
		errs = append(errs, ValidationError{
			Field:   "codec",
			Message: fmt.Sprintf("must be one of: h264, hevc, av1 (got %q)", cfg.Codec),
		})
	}

	validSpaces := map[string]bool{"bt601": true, "bt709": true, "bt2020": true}
	if !validSpaces[cfg.ColorSpace] {
		errs = append(errs, ValidationError{
			Field:   "color_space",
			Message: fmt.Sprintf("must be one of: bt601, bt709, bt2020 (got %q)", cfg.ColorSpace),
		})
	}

	validRanges := map[string]bool{"limited": true, "full": true}
	if !validRanges[cfg.ColorRange] {
		errs = append(errs, ValidationError{
			Field:   "color_range",
			Message: fmt.Sprintf("must be 'limited' or 'full' (got %q)", cfg.ColorRange),
		})
	}

	validHDR := map[string]bool{"sdr": true, "hdr10": true}
	if !validHDR[cfg.HDR] {
		errs = append(errs, ValidationError{
			Field:   "hdr",
			Message: fmt.Sprintf("must be 'sdr' or 'hdr10' (got %q)", cfg.HDR),
		})
	}

	if cfg.BufferCount < 0 {
		errs = append(errs, ValidationError{
			Field:   "buffer_count",
			Message: "must be 0 (auto) or positive",
		})
	}

	if cfg.Mode != ModeAsync && cfg.Mode != ModeSync {
		errs = append(errs, ValidationError{
			Field:   "mode",
			Message: fmt.Sprintf("must be 'async' or 'sync' (got %q)", cfg.Mode),
		})
	}

	// Scheduler tunables
	if cfg.DirectSubmitAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "direct_submit_attempts",
			Message: "must be at least 1",
		})
	}
	if cfg.DirectSubmitTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "direct_submit_timeout",
			Message: "must be positive",
		})
	}
	if cfg.PushRetryLimit < 0 {
		errs = append(errs, ValidationError{
			Field:   "push_retry_limit",
			Message: "must be non-negative",
		})
	}
	if cfg.AsyncAcquireTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "async_acquire_timeout",
			Message: "must be positive",
		})
	}
	if cfg.DrainBatchSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "drain_batch_size",
			Message: "must be at least 1",
		})
	}
	if cfg.OutputErrorLimit < 1 {
		errs = append(errs, ValidationError{
			Field:   "output_error_limit",
			Message: "must be at least 1",
		})
	}
	if cfg.PendingQueueCap < 1 {
		errs = append(errs, ValidationError{
			Field:   "pending_queue_cap",
			Message: "must be at least 1",
		})
	}
	if cfg.TimestampMapCap < 1 {
		errs = append(errs, ValidationError{
			Field:   "timestamp_map_cap",
			Message: "must be at least 1",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
