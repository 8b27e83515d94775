package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulatorUpdate(t *testing.T) {
	a := NewTokenAccumulator()
	a.Update(100, 40, 140)
	a.Update(200, 60, 260)

	snap := a.Snapshot()
	assert.Equal(t, 300, snap.PromptTokens)
	assert.Equal(t, 100, snap.CompletionTokens)
	assert.Equal(t, 400, snap.TotalTokens)
	assert.Equal(t, 2, snap.RequestCount)
	assert.Equal(t, 200, snap.LastPrompt)
	assert.Equal(t, 60, snap.LastCompletion)
}

func TestAccumulatorReduceProportionally(t *testing.T) {
	a := NewTokenAccumulator()
	a.Update(1000, 500, 1500)
	a.Update(1000, 500, 1500)

	a.ReduceProportionally(0.5)

	snap := a.Snapshot()
	assert.Equal(t, 1000, snap.PromptTokens)
	assert.Equal(t, 500, snap.CompletionTokens)
	assert.Equal(t, 1500, snap.TotalTokens)
	assert.Equal(t, 1, snap.RequestCount)
}

func TestAccumulatorReduceClampsFactor(t *testing.T) {
	a := NewTokenAccumulator()
	a.Update(100, 100, 200)

	a.ReduceProportionally(1.5)
	assert.Equal(t, 200, a.Snapshot().TotalTokens, "factor above 1 must not inflate")

	a.ReduceProportionally(-1)
	assert.Equal(t, 0, a.Snapshot().TotalTokens, "negative factor must zero out")
}

func TestAccumulatorReset(t *testing.T) {
	a := NewTokenAccumulator()
	a.Update(10, 10, 20)
	a.Reset()
	assert.Equal(t, TokenSnapshot{}, a.Snapshot())
}

func TestAccumulatorConcurrentUpdates(t *testing.T) {
	a := NewTokenAccumulator()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Update(10, 5, 15)
		}()
	}
	wg.Wait()

	snap := a.Snapshot()
	assert.Equal(t, 500, snap.PromptTokens)
	assert.Equal(t, 250, snap.CompletionTokens)
	assert.Equal(t, 750, snap.TotalTokens)
	assert.Equal(t, 50, snap.RequestCount)
}
