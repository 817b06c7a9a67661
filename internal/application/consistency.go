package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// ErrNotConsistent is returned when the hosting API did not reflect a write
// within the polling budget.
var ErrNotConsistent = errors.New("hosting API did not become consistent in time")

// RetryPolicy bounds the exponential backoff used in place of fixed sleeps.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// DefaultRetryPolicy suits read-after-write lag on the hosting API.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
	MaxElapsed:      30 * time.Second,
}

// WebhookRetryPolicy bounds polling done while a webhook request is open. It
// stays under GitHub's 10s delivery timeout.
var WebhookRetryPolicy = RetryPolicy{
	InitialInterval: 250 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	MaxElapsed:      8 * time.Second,
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.InitialInterval),
		backoff.WithMaxInterval(p.MaxInterval),
		backoff.WithMaxElapsedTime(p.MaxElapsed),
	)
	return backoff.WithContext(b, ctx)
}

// awaitIssue polls the issue until its UpdatedAt is at least since, so that
// state read from the API is no older than the webhook that triggered the read.
func awaitIssue(ctx context.Context, tracker driven.IssueTracker, policy RetryPolicy, repo string, number int, since time.Time) (*model.Issue, error) {
	issue, err := backoff.RetryWithData(func() (*model.Issue, error) {
		issue, err := tracker.GetIssue(ctx, repo, number)
		if err != nil {
			if errors.Is(err, driven.ErrNotFound) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		if !since.IsZero() && issue.UpdatedAt.Before(since) {
			return nil, ErrNotConsistent
		}
		return issue, nil
	}, policy.backOff(ctx))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", model.IssueKey(repo, number), err)
	}
	return issue, nil
}

// retryOn runs op until it succeeds, fails with an error not matching target,
// or the policy budget is exhausted.
func retryOn(ctx context.Context, policy RetryPolicy, target error, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil || errors.Is(err, target) {
			return err
		}
		return backoff.Permanent(err)
	}, policy.backOff(ctx))
}
