// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	const workers = 16
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("task-1")
			defer unlock()
			counter++ // data race unless the lock actually serializes
		}()
	}
	wg.Wait()

	require.Equal(t, workers, counter)
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock("task-a")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("task-b")
		unlockB()
		close(done)
	}()
	<-done // would deadlock if task-b waited on task-a
	unlockA()
}

func TestKeyedMutex_EntriesAreReclaimed(t *testing.T) {
	km := newKeyedMutex()

	for i := 0; i < 100; i++ {
		unlock := km.Lock("task-1")
		unlock()
	}

	km.mu.Lock()
	defer km.mu.Unlock()
	require.Empty(t, km.locks)
}
