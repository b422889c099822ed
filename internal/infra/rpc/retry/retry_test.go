package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestDefaultClassifier(t *testing.T) {
	transient := []codes.Code{codes.Unavailable, codes.Aborted, codes.ResourceExhausted, codes.DeadlineExceeded}
	for _, c := range transient {
		assert.True(t, DefaultClassifier.IsTransient(status.Error(c, "x")), c.String())
	}
	permanent := []codes.Code{codes.PermissionDenied, codes.NotFound, codes.InvalidArgument, codes.Internal}
	for _, c := range permanent {
		assert.False(t, DefaultClassifier.IsTransient(status.Error(c, "x")), c.String())
	}
	assert.False(t, DefaultClassifier.IsTransient(nil))
	assert.False(t, DefaultClassifier.IsTransient(errors.New("plain")))
}

func TestLimitedErrorCountPolicy(t *testing.T) {
	p := NewLimitedErrorCountPolicy(3)
	unavailable := status.Error(codes.Unavailable, "try-again")

	for i := 0; i < 3; i++ {
		require.True(t, p.OnFailure(unavailable), "failure %d", i+1)
		require.False(t, p.IsExhausted())
	}
	assert.False(t, p.OnFailure(unavailable))
	assert.True(t, p.IsExhausted())
}

func TestLimitedErrorCountPolicy_PermanentDoesNotConsumeBudget(t *testing.T) {
	p := NewLimitedErrorCountPolicy(1)
	assert.False(t, p.OnFailure(status.Error(codes.PermissionDenied, "uh oh")))
	assert.False(t, p.IsExhausted())
	assert.True(t, p.OnFailure(status.Error(codes.Unavailable, "try-again")))
}

func TestLimitedErrorCountPolicy_CloneIsIndependent(t *testing.T) {
	proto := NewLimitedErrorCountPolicy(1)
	a := proto.Clone()
	b := proto.Clone()
	unavailable := status.Error(codes.Unavailable, "try-again")

	require.True(t, a.OnFailure(unavailable))
	require.False(t, a.OnFailure(unavailable))
	assert.True(t, b.OnFailure(unavailable), "clone b must not see a's failures")
	assert.False(t, proto.IsExhausted())
}

func TestLimitedTimePolicy(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	p := NewLimitedTimePolicyWithClock(time.Minute, clock, nil)
	unavailable := status.Error(codes.Unavailable, "try-again")

	assert.True(t, p.OnFailure(unavailable))
	now = now.Add(59 * time.Second)
	assert.True(t, p.OnFailure(unavailable))
	now = now.Add(time.Second)
	assert.False(t, p.OnFailure(unavailable))
	assert.True(t, p.IsExhausted())

	fresh := p.Clone()
	assert.False(t, fresh.IsExhausted(), "clone restarts the deadline")
	assert.False(t, fresh.OnFailure(status.Error(codes.NotFound, "gone")))
}

func TestNoRetryPolicy(t *testing.T) {
	p := (&NoRetryPolicy{}).Clone()
	assert.False(t, p.OnFailure(status.Error(codes.Unavailable, "try-again")))
	assert.True(t, p.IsExhausted())
}

func TestExponentialBackoff_Sequence(t *testing.T) {
	p, err := NewExponentialBackoffPolicy(ExponentialBackoffConfig{
		Initial: 10 * time.Millisecond,
		Maximum: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	want := []time.Duration{10, 20, 40, 50, 50}
	for i, w := range want {
		assert.Equal(t, w*time.Millisecond, p.OnCompletion(), "call %d", i)
	}

	c := p.Clone()
	assert.Equal(t, 10*time.Millisecond, c.OnCompletion())
}

func TestExponentialBackoff_JitterIsMonotonicAndBounded(t *testing.T) {
	p, err := NewExponentialBackoffPolicy(ExponentialBackoffConfig{
		Initial:    time.Millisecond,
		Maximum:    time.Second,
		Multiplier: 1.7,
		Jitter:     true,
	})
	require.NoError(t, err)

	prev := time.Duration(0)
	for i := 0; i < 200; i++ {
		d := p.OnCompletion()
		require.GreaterOrEqual(t, d, prev, "call %d", i)
		require.LessOrEqual(t, d, time.Second, "call %d", i)
		prev = d
	}
}

func TestExponentialBackoff_Validation(t *testing.T) {
	_, err := NewExponentialBackoffPolicy(ExponentialBackoffConfig{Initial: 0, Maximum: time.Second})
	assert.ErrorIs(t, err, errInvalidBackoff)
	_, err = NewExponentialBackoffPolicy(ExponentialBackoffConfig{Initial: time.Second, Maximum: time.Millisecond})
	assert.ErrorIs(t, err, errInvalidBackoff)
	_, err = NewExponentialBackoffPolicy(ExponentialBackoffConfig{Initial: time.Second, Maximum: time.Minute, Multiplier: 0.5})
	assert.ErrorIs(t, err, errInvalidBackoff)
}
