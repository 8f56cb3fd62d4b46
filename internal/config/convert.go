package config

import (
	"fmt"
	"strings"
	"time"
)

// Durations parses timeout and retry_delay. Blank or zero values yield zero,
// which remote.Config.WithDefaults replaces with 5s and 2s.
func (r RemoteConfig) Durations() (timeout time.Duration, delay time.Duration, err error) {
	if timeout, err = parseDuration("remote.timeout", r.Timeout); err != nil {
		return 0, 0, err
	}
	if delay, err = parseDuration("remote.retry_delay", r.RetryDelay); err != nil {
		return 0, 0, err
	}
	return timeout, delay, nil
}

// TimeoutDuration parses indexer.timeout.
func (i IndexerConfig) TimeoutDuration() (time.Duration, error) {
	return parseDuration("indexer.timeout", i.Timeout)
}

// WarmDuration parses warm_timeout. Zero disables the bound.
func (f File) WarmDuration() (time.Duration, error) {
	return parseDuration("warm_timeout", f.WarmTimeout)
}

func parseDuration(key, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s invalid: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}
