package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"

	"github.com/finops-claw-gang/genui/internal/history"
	"github.com/finops-claw-gang/genui/internal/observability"
	"github.com/finops-claw-gang/genui/internal/provider"
	"github.com/finops-claw-gang/genui/internal/ratelimit"
)

// Activities holds the dependencies for all Temporal activities.
// Each method is registered as a Temporal activity.
type Activities struct {
	Providers *provider.Registry
	Limiter   *ratelimit.ProviderLimiter // nil = no rate limiting
	History   history.Store
	Metrics   *observability.Metrics // nil = no metrics
}

// resolve looks the provider up and waits for a rate-limit token.
// Unknown providers are not retryable.
func (a *Activities) resolve(ctx context.Context, name string) (provider.Provider, error) {
	p, err := a.Providers.Get(name)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "UnknownProvider", err)
	}
	if err := a.Limiter.Wait(ctx, name); err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", name, err)
	}
	return p, nil
}

// SubmitGeneration hands the job to its provider.
func (a *Activities) SubmitGeneration(ctx context.Context, in SubmitInput) (SubmitOutput, error) {
	a.Metrics.RecordActivity(ctx, "SubmitGeneration")
	p, err := a.resolve(ctx, in.Provider)
	if err != nil {
		return SubmitOutput{}, err
	}
	jobID, err := p.Submit(ctx, in.Job)
	if err != nil {
		return SubmitOutput{}, fmt.Errorf("submit activity: %w", err)
	}
	a.Metrics.GenerationStarted(ctx, in.Provider, in.Job.ActionType)
	return SubmitOutput{JobID: jobID}, nil
}

// PollGeneration reports the job's current status. A job the provider
// no longer knows is a permanent failure.
func (a *Activities) PollGeneration(ctx context.Context, in PollInput) (PollOutput, error) {
	a.Metrics.RecordActivity(ctx, "PollGeneration")
	p, err := a.resolve(ctx, in.Provider)
	if err != nil {
		return PollOutput{}, err
	}
	status, err := p.Poll(ctx, in.JobID)
	if errors.Is(err, provider.ErrUnknownJob) {
		return PollOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), "UnknownJob", err)
	}
	if err != nil {
		return PollOutput{}, fmt.Errorf("poll activity: %w", err)
	}
	if status.State == provider.StateFailed {
		a.Metrics.GenerationFailed(ctx, in.Provider, in.ActionType)
	}
	return PollOutput{Status: status}, nil
}

// RecordGeneration appends the finished generation to history. The store
// ignores duplicates, so retries are safe.
func (a *Activities) RecordGeneration(ctx context.Context, in RecordInput) error {
	a.Metrics.RecordActivity(ctx, "RecordGeneration")
	if a.History == nil {
		return nil
	}
	if err := a.History.Record(ctx, in.Record); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	a.Metrics.GenerationCompleted(ctx, in.Record.Provider, in.Record.ActionType, time.Duration(in.ElapsedMs)*time.Millisecond)
	return nil
}
