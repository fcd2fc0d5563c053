/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-admission/config"
	"github.com/acronis/go-admission/log/logtest"
)

func TestDoWithRetry(t *testing.T) {
	errTemporary := errors.New("temporary")
	errPermanent := errors.New("permanent")

	t.Run("succeeds after retries", func(t *testing.T) {
		attempts := 0
		err := DoWithRetry(context.Background(), NewConstantBackoffPolicy(time.Millisecond, 5), nil, nil,
			func(ctx context.Context) error {
				attempts++
				if attempts < 3 {
					return errTemporary
				}
				return nil
			})
		require.NoError(t, err)
		require.Equal(t, 3, attempts)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		attempts := 0
		logRecorder := logtest.NewRecorder()
		err := DoWithRetry(context.Background(), NewExponentialBackoffPolicy(time.Millisecond, 2), nil,
			LogNotify(logRecorder, "downstream call failed"),
			func(ctx context.Context) error {
				attempts++
				return errTemporary
			})
		require.ErrorIs(t, err, errTemporary)
		require.Equal(t, 3, attempts)
		require.Equal(t, 2, logRecorder.CountEntries("downstream call failed"))
	})

	t.Run("non-retryable error stops immediately", func(t *testing.T) {
		attempts := 0
		isRetryable := func(err error) bool { return !errors.Is(err, errPermanent) }
		err := DoWithRetry(context.Background(), NewConstantBackoffPolicy(time.Millisecond, 5), isRetryable, nil,
			func(ctx context.Context) error {
				attempts++
				return errPermanent
			})
		require.ErrorIs(t, err, errPermanent)
		require.Equal(t, 1, attempts)
	})

	t.Run("no retry policy", func(t *testing.T) {
		attempts := 0
		err := DoWithRetry(context.Background(), NoRetryPolicy, nil, nil, func(ctx context.Context) error {
			attempts++
			return errTemporary
		})
		require.ErrorIs(t, err, errTemporary)
		require.Equal(t, 1, attempts)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		attempts := 0
		err := DoWithRetry(ctx, PolicyFunc(func() backoff.BackOff { return backoff.NewConstantBackOff(time.Hour) }), nil, nil,
			func(ctx context.Context) error {
				attempts++
				cancel()
				return errTemporary
			})
		require.Error(t, err)
		require.Equal(t, 1, attempts)
	})
}

func TestConfig(t *testing.T) {
	load := func(cfgData string) (*Config, error) {
		cfg := NewConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg)
		return cfg, err
	}

	cfg, err := load("")
	require.NoError(t, err)
	require.Equal(t, DefaultPolicyKind, cfg.Policy)
	require.Equal(t, DefaultInterval, cfg.Interval)
	require.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
	require.Equal(t, NewExponentialBackoffPolicy(DefaultInterval, DefaultMaxAttempts), cfg.NewPolicy())

	cfg, err = load(`
retry:
  policy: Constant
  interval: 1s
  maxAttempts: 7
`)
	require.NoError(t, err)
	require.Equal(t, NewConstantBackoffPolicy(time.Second, 7), cfg.NewPolicy())

	cfg, err = load("retry: {policy: none}")
	require.NoError(t, err)
	require.Equal(t, NoRetryPolicy.NewBackOff(), cfg.NewPolicy().NewBackOff())

	_, err = load("retry: {policy: fibonacci}")
	require.ErrorContains(t, err, "retry.policy")

	_, err = load("retry: {maxAttempts: -1}")
	require.EqualError(t, err, "retry.maxAttempts: cannot be negative")
}
