package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialPolicy(t *testing.T) {
	t.Parallel()
	p := NewExponentialPolicy(10*time.Millisecond, 3)

	d, err := p.NextInterval(0)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, d)

	d, err = p.NextInterval(1)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, d)

	_, err = p.NextInterval(3)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestExponentialPolicyCapsInterval(t *testing.T) {
	t.Parallel()
	p := NewExponentialPolicy(10*time.Millisecond, 0)
	d, err := p.NextInterval(20)
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, d)
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := Retry(context.Background(), NewExponentialPolicy(time.Millisecond, 5), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryReturnsLastError(t *testing.T) {
	t.Parallel()
	boom := errors.New("persistent")
	err := Retry(context.Background(), NewExponentialPolicy(time.Millisecond, 2), func() error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestRetryHonorsContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, NewExponentialPolicy(time.Hour, 0), func() error {
		return errors.New("always")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
