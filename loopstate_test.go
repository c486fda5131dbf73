package fuerte

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoopState_QueueCount(t *testing.T) {
	var s loopState
	require.EqualValues(t, 0, s.queueCount())
	s.incQueueCount()
	s.incQueueCount()
	require.EqualValues(t, 2, s.queueCount())
	s.decQueueCount()
	require.EqualValues(t, 1, s.queueCount())
}

func TestLoopState_TryStartWriteLoop_SingleWinner(t *testing.T) {
	var s loopState
	const n = 50
	var wins int32
	var wg sync.WaitGroup
	var mu sync.Mutex
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if s.tryStartWriteLoop() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, wins)
	require.True(t, s.writeActive())
}

func TestLoopState_StopWriteLoopIfEmpty(t *testing.T) {
	var s loopState
	s.tryStartWriteLoop()
	s.incQueueCount()
	require.False(t, s.stopWriteLoopIfEmpty())
	require.True(t, s.writeActive())

	s.decQueueCount()
	require.True(t, s.stopWriteLoopIfEmpty())
	require.False(t, s.writeActive())
}

func TestLoopState_ReadLoopIndependentOfWriteLoop(t *testing.T) {
	var s loopState
	require.True(t, s.tryStartReadLoop())
	require.True(t, s.tryStartWriteLoop())
	require.True(t, s.readActive())
	require.True(t, s.writeActive())
	s.stopReadLoop()
	require.False(t, s.readActive())
	require.True(t, s.writeActive())
}

func TestLoopState_Reset(t *testing.T) {
	var s loopState
	s.tryStartWriteLoop()
	s.tryStartReadLoop()
	s.incQueueCount()
	s.reset()
	require.False(t, s.writeActive())
	require.False(t, s.readActive())
	require.EqualValues(t, 0, s.queueCount())
}
