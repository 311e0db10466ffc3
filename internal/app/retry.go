package app

import (
	"context"
	"errors"
	"time"

	"battle-quiz-service/internal/domain"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// RetryPolicy bounds the backoff used for idempotent store writes issued by a room actor.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxElapsedTime:  15 * time.Second,
	}
}

// retry runs op until it succeeds, fails with a non-transient error, or the policy gives up.
// Only domain.ErrStoreUnavailable is retried.
func (p RetryPolicy) retry(ctx context.Context, log logrus.FieldLogger, what string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = p.MaxElapsedTime

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !errors.Is(err, domain.ErrStoreUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		log.WithFields(logrus.Fields{"op": what, "wait": wait}).WithError(err).Warn("store write failed, retrying")
	})
}
