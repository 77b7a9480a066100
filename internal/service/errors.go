package service

import "fmt"

// Stage names the pipeline step a provider call failed in, so callers can
// decide whether to retry or degrade.
type Stage string

const (
	StageSeed             Stage = "seed"
	StageQueryEmbed       Stage = "query-embed"
	StageFirstCompletion  Stage = "first-completion"
	StageSecondCompletion Stage = "second-completion"
)

// ProviderError wraps a failed embedding or completion call with the stage
// it happened in. Guardrail blocks and empty retrievals are outcomes, not
// errors, and never produce one.
type ProviderError struct {
	Stage Stage
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error at %s: %v", e.Stage, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
