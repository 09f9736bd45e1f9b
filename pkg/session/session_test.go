package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash(t *testing.T) {
	h1 := ContentHash("привет")
	h2 := ContentHash("привет")
	h3 := ContentHash("привет!")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
	assert.NotContains(t, h1, "привет")
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.LoadSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	sess := NewSession("s1", "u1", time.Now())
	sess.ContextBag["topic"] = "letters"
	require.NoError(t, store.SaveSession(ctx, sess))
	assert.EqualValues(t, 1, sess.Revision)

	loaded, err := store.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StateStart, loaded.CurrentState)
	assert.Equal(t, "letters", loaded.ContextBag["topic"])

	// Mutating the loaded copy must not leak back into the store.
	loaded.ContextBag["topic"] = "goals"
	again, err := store.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "letters", again.ContextBag["topic"])
}

func TestMemoryStore_ArchiveFlow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	old := NewSession("old", "u1", time.Now().Add(-2*time.Hour))
	fresh := NewSession("fresh", "u1", time.Now())
	require.NoError(t, store.SaveSession(ctx, old))
	require.NoError(t, store.SaveSession(ctx, fresh))

	idle, err := store.ListIdleSessions(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, idle)

	require.NoError(t, store.ArchiveSession(ctx, "old"))

	// Archived sessions are kept, not deleted, and are no longer idle candidates.
	archived, err := store.LoadSession(ctx, "old")
	require.NoError(t, err)
	assert.True(t, archived.Archived)

	idle, err = store.ListIdleSessions(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, idle)
}

func TestMemoryStore_DeleteUserData(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	s1 := NewSession("s1", "u1", time.Now())
	s2 := NewSession("s2", "u2", time.Now())
	require.NoError(t, store.SaveSession(ctx, s1))
	require.NoError(t, store.SaveSession(ctx, s2))
	require.NoError(t, store.SaveMessage(ctx, &Message{ID: "m1", SessionID: "s1"}))

	require.NoError(t, store.DeleteUserData(ctx, "u1"))

	_, err := store.LoadSession(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, store.Messages("s1"))

	// Other users untouched.
	_, err = store.LoadSession(ctx, "s2")
	assert.NoError(t, err)
}

func TestArchiver_Sweep(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	idle := NewSession("idle", "u1", time.Now().Add(-time.Hour))
	active := NewSession("active", "u1", time.Now())
	require.NoError(t, store.SaveSession(ctx, idle))
	require.NoError(t, store.SaveSession(ctx, active))

	NewArchiver(store, 30*time.Minute, time.Minute).Sweep(ctx)

	archived, err := store.LoadSession(ctx, "idle")
	require.NoError(t, err)
	assert.True(t, archived.Archived)

	untouched, err := store.LoadSession(ctx, "active")
	require.NoError(t, err)
	assert.False(t, untouched.Archived)
}

func TestLocker_SerializesPerSession(t *testing.T) {
	locker := NewLocker()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock("same")
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen, "at most one in-flight holder per session")
}

func TestLocker_DifferentSessionsRunInParallel(t *testing.T) {
	locker := NewLocker()

	unlockA := locker.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := locker.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different session must not block")
	}
	unlockA()
}

func TestPhaseForState_IsTotal(t *testing.T) {
	states := []State{
		StateStart, StateEmotionCheck, StateCrisisIntervention, StateHighDistress,
		StateModerateSupport, StateCasualChat, StateLetterWriting, StateGoalTracking,
		StateTechniqueSelection, StateTechniqueExecution, StateEndSession,
	}
	for _, s := range states {
		assert.NotEmpty(t, PhaseForState(s), "state %s must map to a phase", s)
	}
}
