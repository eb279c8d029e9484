package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashToIndex(t *testing.T) {
	assert.Equal(t, 0, HashToIndex("anything", 1))
	assert.Equal(t, 0, HashToIndex("anything", 0))

	// "ab" -> 97*31 + 98 = 3105
	assert.Equal(t, 3105%7, HashToIndex("ab", 7))

	first := HashToIndex("6f1c2a0e-3b7d-4c55-9a43-0d2f6f0c1e11", 3)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, HashToIndex("6f1c2a0e-3b7d-4c55-9a43-0d2f6f0c1e11", 3))
	}
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 3)
}

func TestExtractDomainFromEmail(t *testing.T) {
	assert.Equal(t, "farm.com", ExtractDomainFromEmail("Hiring <Jobs@Farm.COM>"))
	assert.Equal(t, "farm.com", ExtractDomainFromEmail(" jobs@farm.com "))
	assert.Equal(t, "", ExtractDomainFromEmail("jobs@"))
	assert.Equal(t, "", ExtractDomainFromEmail("@farm.com"))
	assert.Equal(t, "", ExtractDomainFromEmail("jobs@a"))
	assert.Equal(t, "", ExtractDomainFromEmail(""))
}

func TestLocalDate(t *testing.T) {
	ts := time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC)

	assert.Equal(t, "2026-03-10", LocalDate(ts, ""))
	assert.Equal(t, "2026-03-09", LocalDate(ts, "America/Sao_Paulo"))
	assert.Equal(t, "2026-03-10", LocalDate(ts, "Not/AZone"))
	assert.Equal(t, 23, LocalHour(ts, "America/Sao_Paulo"))
}

func TestKeyedMutex_TryLock(t *testing.T) {
	km := NewKeyedMutex()

	require.True(t, km.TryLock("user-1"))
	assert.False(t, km.TryLock("user-1"))
	assert.True(t, km.TryLock("user-2"))
	assert.True(t, km.Locked("user-1"))

	km.Unlock("user-1")
	assert.False(t, km.Locked("user-1"))
	assert.True(t, km.TryLock("user-1"))

	km.Unlock("user-1")
	km.Unlock("user-2")
}

func TestKeyedMutex_SingleWinner(t *testing.T) {
	km := NewKeyedMutex()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	start := make(chan struct{})

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if km.TryLock("user-1") {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestUniqueStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, UniqueStrings([]string{"a", "", "b", "a"}))
	assert.Equal(t, []int{1, 2}, FirstN([]int{1, 2, 3}, 2))
	assert.Equal(t, []string{"a", "c"}, Difference([]string{"a", "b", "c"}, []string{"b", "x"}))
	assert.Empty(t, Difference([]string{"a"}, []string{"a"}))
	assert.Equal(t, []int{1}, FirstN([]int{1}, 5))
	assert.Empty(t, FirstN([]int{1}, -1))
}
