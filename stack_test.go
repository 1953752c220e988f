package taskcoord

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStackScheduler_CeilingOneLIFOOrder(t *testing.T) {
	t.Parallel()

	s := NewStackScheduler(&StackSchedulerConfig{MaxConcurrent: 1})

	var mu sync.Mutex
	var order []string

	started := make(chan string, 3)
	record := func(label string, wait time.Duration) func(ctx context.Context) (struct{}, error) {
		return func(ctx context.Context) (struct{}, error) {
			started <- label
			time.Sleep(wait)
			mu.Lock()
			order = append(order, label)
			mu.Unlock()
			return struct{}{}, nil
		}
	}

	hA := SubmitStack(s, `A`, PriorityNormal, record(`A`, 30*time.Millisecond))
	<-started // A is guaranteed to have started before B/C are even submitted

	hB := SubmitStack(s, `B`, PriorityNormal, record(`B`, 10*time.Millisecond))
	hC := SubmitStack(s, `C`, PriorityNormal, record(`C`, 10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := hA.Wait(ctx)
	require.NoError(t, err)
	_, err = hC.Wait(ctx)
	require.NoError(t, err)
	_, err = hB.Wait(ctx)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{`A`, `C`, `B`}, order, `with ceiling 1, the most recently submitted waiting task runs next`)
}

func TestStackScheduler_CeilingTwoFiveOpsOrder(t *testing.T) {
	t.Parallel()

	s := NewStackScheduler(&StackSchedulerConfig{MaxConcurrent: 2})

	var mu sync.Mutex
	var order []string

	record := func(label string, wait time.Duration) func(ctx context.Context) (struct{}, error) {
		return func(ctx context.Context) (struct{}, error) {
			time.Sleep(wait)
			mu.Lock()
			order = append(order, label)
			mu.Unlock()
			return struct{}{}, nil
		}
	}

	// first and second occupy both executing slots immediately; third and
	// fourth wait; fifth is submitted last and, being newest, preempts
	// third and fourth once a slot frees up.
	hFirst := SubmitStack(s, `first`, PriorityNormal, record(`first`, 60*time.Millisecond))
	hSecond := SubmitStack(s, `second`, PriorityNormal, record(`second`, 60*time.Millisecond))
	time.Sleep(10 * time.Millisecond) // let first/second actually start executing
	hThird := SubmitStack(s, `third`, PriorityNormal, record(`third`, 20*time.Millisecond))
	hFourth := SubmitStack(s, `fourth`, PriorityNormal, record(`fourth`, 20*time.Millisecond))
	hFifth := SubmitStack(s, `fifth`, PriorityNormal, record(`fifth`, 10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, h := range []Handle[struct{}]{hFirst, hSecond, hFifth, hFourth, hThird} {
		_, err := h.Wait(ctx)
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{`first`, `second`, `fifth`, `fourth`, `third`}, order)
}

func TestStackScheduler_CeilingRespected(t *testing.T) {
	t.Parallel()

	const ceiling = 2
	s := NewStackScheduler(&StackSchedulerConfig{MaxConcurrent: ceiling})

	var mu sync.Mutex
	maxConcurrent := 0
	current := 0

	const n = 6
	var handles []Handle[struct{}]
	for i := 0; i < n; i++ {
		h := SubmitStack(s, `t`, PriorityNormal, func(ctx context.Context) (struct{}, error) {
			mu.Lock()
			current++
			if current > maxConcurrent {
				maxConcurrent = current
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
			return struct{}{}, nil
		})
		handles = append(handles, h)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, h := range handles {
		_, err := h.Wait(ctx)
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxConcurrent, ceiling)
	assert.Equal(t, ceiling, maxConcurrent, `with more waiting work than the ceiling, the ceiling should be fully used`)
}

func TestStackScheduler_WaitUntilAllItemProcessed(t *testing.T) {
	t.Parallel()

	s := NewStackScheduler(&StackSchedulerConfig{MaxConcurrent: 2})

	for i := 0; i < 4; i++ {
		SubmitStack(s, `t`, PriorityNormal, func(ctx context.Context) (struct{}, error) {
			time.Sleep(20 * time.Millisecond)
			return struct{}{}, nil
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.WaitUntilAllItemProcessed(ctx))
	assert.Equal(t, 0, s.Len())
}

func TestStackScheduler_WaitUntilAllItemProcessedRespectsContext(t *testing.T) {
	t.Parallel()

	s := NewStackScheduler(&StackSchedulerConfig{MaxConcurrent: 1})
	SubmitStack(s, `t`, PriorityNormal, func(ctx context.Context) (struct{}, error) {
		time.Sleep(200 * time.Millisecond)
		return struct{}{}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.WaitUntilAllItemProcessed(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStackScheduler_DefaultMaxConcurrentIsOne(t *testing.T) {
	t.Parallel()

	s := NewStackScheduler(nil)

	var mu sync.Mutex
	maxConcurrent, current := 0, 0
	var handles []Handle[struct{}]
	for i := 0; i < 3; i++ {
		h := SubmitStack(s, `t`, PriorityNormal, func(ctx context.Context) (struct{}, error) {
			mu.Lock()
			current++
			if current > maxConcurrent {
				maxConcurrent = current
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			current--
			mu.Unlock()
			return struct{}{}, nil
		})
		handles = append(handles, h)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, h := range handles {
		_, err := h.Wait(ctx)
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxConcurrent)
}
