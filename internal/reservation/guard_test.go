package reservation

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullSyncExcludesEverything(t *testing.T) {
	t.Parallel()

	g := NewMemoryGuard()
	require.True(t, g.Reserve(nil).OK)

	full := g.Reserve(nil)
	assert.False(t, full.OK)
	assert.Equal(t, ReasonAnotherRunning, full.Reason)
	assert.True(t, full.Conflicts.Global)

	targeted := g.Reserve([]int64{1, 2})
	assert.False(t, targeted.OK)
	assert.Equal(t, ReasonFullSyncRunning, targeted.Reason)
	assert.Equal(t, &Conflict{Global: true}, targeted.Conflicts)
	assert.Empty(t, g.State().Companies, "rejected targeted call must not reserve ids")

	g.Release(nil)
	assert.True(t, g.Reserve([]int64{1, 2}).OK)
}

func TestTargetedBlocksFullSync(t *testing.T) {
	t.Parallel()

	g := NewMemoryGuard()
	require.True(t, g.Reserve([]int64{3, 1}).OK)

	out := g.Reserve([]int64{})
	assert.False(t, out.OK)
	assert.Equal(t, &Conflict{Global: false, Companies: []int64{1, 3}}, out.Conflicts)
	assert.False(t, g.State().Global)
}

func TestPartialConflictReportsOnlyOverlap(t *testing.T) {
	t.Parallel()

	g := NewMemoryGuard()
	require.True(t, g.Reserve([]int64{1, 2, 3}).OK)

	out := g.Reserve([]int64{3, 4})
	assert.False(t, out.OK)
	assert.Equal(t, ReasonCompaniesSyncing, out.Reason)
	assert.Equal(t, []int64{3}, out.Conflicts.Companies)

	assert.Equal(t, State{Global: false, Companies: []int64{1, 2, 3}}, g.State())

	g.Release([]int64{1, 2, 3})
	assert.True(t, g.Reserve([]int64{3, 4}).OK)
	assert.Equal(t, []int64{3, 4}, g.State().Companies)
}

func TestReleaseNilClearsGlobalUnconditionally(t *testing.T) {
	t.Parallel()

	g := NewMemoryGuard()
	require.True(t, g.Reserve([]int64{7}).OK)
	g.Release(nil)

	st := g.State()
	assert.False(t, st.Global)
	assert.Equal(t, []int64{7}, st.Companies, "global release leaves targeted ids alone")
}

func TestReset(t *testing.T) {
	t.Parallel()

	g := NewMemoryGuard()
	require.True(t, g.Reserve([]int64{1}).OK)
	g.Reset()
	assert.Equal(t, State{Companies: []int64{}}, g.State())
	assert.True(t, g.Reserve(nil).OK)
}

func TestConcurrentReserveSingleWinner(t *testing.T) {
	t.Parallel()

	g := NewMemoryGuard()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Reserve([]int64{42, 43}).OK {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

var _ Guard = (*MemoryGuard)(nil)
