package utils_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"vision-backend/internal/core/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInpool(t *testing.T) {
	worker := func(i int) (string, error) {
		if i%4 == 3 {
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			return "", fmt.Errorf("error")
		}
		return fmt.Sprintf("%d-%d", i, i), nil
	}

	inputs := make([]int, 10)
	for i := range inputs {
		inputs[i] = i
	}

	results := utils.RunInPool(worker, inputs, 5)
	require.Len(t, results, 10)

	success, errors := 0, 0
	for i, result := range results {
		assert.Equal(t, i, result.Index)
		if result.Error != nil {
			errors++
		} else {
			success++
			assert.Equal(t, fmt.Sprintf("%d-%d", i, i), result.Result)
		}
	}

	if success != 8 || errors != 2 {
		t.Fatal("invalid results")
	}
}

func TestRunInPoolEmpty(t *testing.T) {
	results := utils.RunInPool(func(i int) (int, error) { return i, nil }, nil, 4)
	assert.Empty(t, results)
}

func TestRunOnPoolPreservesOrder(t *testing.T) {
	pool := utils.NewPool(4, 8)
	defer pool.Close()

	inputs := make([]int, 20)
	for i := range inputs {
		inputs[i] = i
	}

	// Earlier inputs sleep longer so they finish last.
	results, err := utils.RunOnPool(context.Background(), pool, inputs, func(idx int, v int) (int, error) {
		time.Sleep(time.Duration(len(inputs)-idx) * time.Millisecond)
		return v * v, nil
	})
	require.NoError(t, err)
	require.Len(t, results, len(inputs))

	for i, res := range results {
		assert.Equal(t, i, res.Index)
		assert.NoError(t, res.Error)
		assert.Equal(t, i*i, res.Result)
	}
}

func TestRunOnPoolBoundsConcurrency(t *testing.T) {
	const workers = 3
	pool := utils.NewPool(workers, 1)
	defer pool.Close()

	var running, peak atomic.Int32
	inputs := make([]int, 12)

	_, err := utils.RunOnPool(context.Background(), pool, inputs, func(int, int) (struct{}, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return struct{}{}, nil
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, peak.Load(), int32(workers))
	assert.Equal(t, workers, pool.Workers())
}

func TestRunOnPoolDeadline(t *testing.T) {
	pool := utils.NewPool(1, 4)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var finished atomic.Int32
	_, err := utils.RunOnPool(ctx, pool, []int{1, 2}, func(int, int) (int, error) {
		time.Sleep(50 * time.Millisecond)
		finished.Add(1)
		return 0, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Submitted tasks are not cancelled, they run to completion.
	assert.Eventually(t, func() bool { return finished.Load() == 2 }, time.Second, 10*time.Millisecond)
}

func TestSubmitBatchDoneOutlivesWait(t *testing.T) {
	pool := utils.NewPool(1, 4)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var finished atomic.Int32
	batch := utils.SubmitBatch(ctx, pool, []int{1, 2, 3}, func(int, int) (int, error) {
		time.Sleep(30 * time.Millisecond)
		finished.Add(1)
		return 0, nil
	})

	_, err := batch.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-batch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("batch never completed")
	}
	assert.Equal(t, int32(3), finished.Load())
}

func TestSubmitBatchAfterClose(t *testing.T) {
	pool := utils.NewPool(1, 1)
	pool.Close()

	batch := utils.SubmitBatch(context.Background(), pool, []int{1, 2}, func(int, int) (int, error) {
		return 0, nil
	})

	_, err := batch.Wait(context.Background())
	assert.ErrorIs(t, err, utils.ErrPoolClosed)

	select {
	case <-batch.Done():
	case <-time.After(time.Second):
		t.Fatal("done should close when nothing was submitted")
	}
}

func TestPoolRecoversFromPanic(t *testing.T) {
	pool := utils.NewPool(1, 1)
	defer pool.Close()

	done := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func() { panic("boom") }))
	require.NoError(t, pool.Submit(context.Background(), func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive panic")
	}
}

func TestPoolSubmitAfterClose(t *testing.T) {
	pool := utils.NewPool(2, 0)
	pool.Close()

	err := pool.Submit(context.Background(), func() {})
	assert.ErrorIs(t, err, utils.ErrPoolClosed)
}
