package scheduler

import (
	"fmt"
	"time"
)

// FailurePolicy decides what happens to the rest of a run when a task fails
type FailurePolicy string

const (
	// SkipDependents marks every transitive dependent of a failed task as skipped
	// and lets unrelated branches finish
	SkipDependents FailurePolicy = "skip-dependents"

	// FailFast cancels the whole run on the first failure
	FailFast FailurePolicy = "fail-fast"
)

// ArtifactPolicy decides how artifact annotations on edges are treated
type ArtifactPolicy string

const (
	// ArtifactsDocument treats artifact annotations as metadata only
	ArtifactsDocument ArtifactPolicy = "document"

	// ArtifactsVerify checks that a producer's expected artifacts exist after it succeeds
	ArtifactsVerify ArtifactPolicy = "verify"
)

// Config contains configuration for the scheduler
type Config struct {
	// MaxParallel is the maximum number of tasks to run in parallel. Zero means no limit.
	MaxParallel int

	// TaskTimeout bounds a single attempt of a task. Zero means no timeout.
	TaskTimeout time.Duration

	// Retries is the number of additional attempts after a failed one
	Retries int

	// RetryInitialInterval and RetryMaxInterval shape the exponential backoff between attempts
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	FailurePolicy  FailurePolicy
	ArtifactPolicy ArtifactPolicy

	// ArtifactRoot resolves relative artifact paths when ArtifactPolicy is ArtifactsVerify
	ArtifactRoot string

	// ProgressInterval is how often progress is reported. Zero disables periodic reports.
	ProgressInterval time.Duration

	// RunName labels progress output
	RunName string
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		MaxParallel:          4,
		TaskTimeout:          0,
		Retries:              0,
		RetryInitialInterval: 500 * time.Millisecond,
		RetryMaxInterval:     30 * time.Second,
		FailurePolicy:        SkipDependents,
		ArtifactPolicy:       ArtifactsDocument,
		ProgressInterval:     5 * time.Second,
	}
}

// ParseFailurePolicy converts a configuration string into a FailurePolicy
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", SkipDependents:
		return SkipDependents, nil
	case FailFast:
		return FailFast, nil
	}
	return "", fmt.Errorf("unknown failure policy %q (expected %s or %s)", s, SkipDependents, FailFast)
}

// ParseArtifactPolicy converts a configuration string into an ArtifactPolicy
func ParseArtifactPolicy(s string) (ArtifactPolicy, error) {
	switch ArtifactPolicy(s) {
	case "", ArtifactsDocument:
		return ArtifactsDocument, nil
	case ArtifactsVerify:
		return ArtifactsVerify, nil
	}
	return "", fmt.Errorf("unknown artifact policy %q (expected %s or %s)", s, ArtifactsDocument, ArtifactsVerify)
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	cfg := *c
	if cfg.MaxParallel < 0 {
		cfg.MaxParallel = 0
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = d.RetryInitialInterval
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = d.RetryMaxInterval
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = d.FailurePolicy
	}
	if cfg.ArtifactPolicy == "" {
		cfg.ArtifactPolicy = d.ArtifactPolicy
	}
	return &cfg
}
