package location

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/outpack/internal/config"
	"github.com/roach88/outpack/internal/failure"
)

func TestAddLocation_UpdatesConfiguration(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.AddLocation(ctx, config.Location{Name: "origin", Type: "path", Args: map[string]any{"path": "/a"}}))
	_, err := s.Mark(ctx, "origin", Entry{Packet: "p1", Time: 1, Hash: "sha256:aa"})
	require.NoError(t, err)
	require.NoError(t, s.AddLocation(ctx, config.Location{Name: "origin", Type: "http", Args: map[string]any{"url": "http://x"}}))

	locs, err := s.Locations(ctx)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "http", locs[0].Type)
	assert.Equal(t, map[string]any{"url": "http://x"}, locs[0].Args)
	assert.Equal(t, 1, locs[0].Packets, "entries survive a configuration change")
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	cfg := config.Default()
	cfg.Location = append(cfg.Location, config.Location{Name: "origin", Type: "path", Args: map[string]any{}})
	require.NoError(t, s.Sync(ctx, cfg))
	require.NoError(t, s.Sync(ctx, cfg))

	locs, err := s.Locations(ctx)
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, config.LocalLocation, locs[0].Name)
	assert.Equal(t, "origin", locs[1].Name)
}

func TestMark_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	createTestLocations(t, s, "origin")

	e := Entry{Packet: "p1", Time: 100, Hash: "sha256:aa"}
	inserted, err := s.Mark(ctx, "origin", e)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Mark(ctx, "origin", e)
	require.NoError(t, err)
	assert.False(t, inserted)

	entries, err := s.Entries(ctx, "origin")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMark_ConflictingHash(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	createTestLocations(t, s, "origin")

	_, err := s.Mark(ctx, "origin", Entry{Packet: "p1", Time: 100, Hash: "sha256:aa"})
	require.NoError(t, err)

	_, err = s.Mark(ctx, "origin", Entry{Packet: "p1", Time: 100, Hash: "sha256:bb"})
	require.Error(t, err)
	assert.True(t, failure.HasCode(err, failure.CodeMetadataConflict))
	assert.True(t, failure.IsIntegrity(err))
}

func TestMark_SamePacketDifferentLocations(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	createTestLocations(t, s, "a", "b")

	for _, loc := range []string{"a", "b"} {
		inserted, err := s.Mark(ctx, loc, Entry{Packet: "p1", Time: 1, Hash: "sha256:aa"})
		require.NoError(t, err)
		assert.True(t, inserted, loc)
	}
}

func TestMark_UnknownLocation(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Mark(context.Background(), "nowhere", Entry{Packet: "p1", Time: 1, Hash: "h"})
	require.Error(t, err)
	assert.True(t, failure.IsNotFound(err))
	assert.True(t, failure.HasCode(err, failure.CodeLocationNotFound))
}

func TestEntries_OrderedByTimeThenID(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	createTestLocations(t, s, "origin")

	for _, e := range []Entry{
		{Packet: "c", Time: 200, Hash: "h3"},
		{Packet: "b", Time: 100, Hash: "h2"},
		{Packet: "a", Time: 100, Hash: "h1"},
		{Packet: "d", Time: 50, Hash: "h4"},
	} {
		_, err := s.Mark(ctx, "origin", e)
		require.NoError(t, err)
	}

	entries, err := s.Entries(ctx, "origin")
	require.NoError(t, err)

	var ids []string
	for _, e := range entries {
		ids = append(ids, e.Packet)
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids)
}

func TestEntries_EmptyAndUnknown(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	createTestLocations(t, s, "origin")

	entries, err := s.Entries(ctx, "origin")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	_, err = s.Entries(ctx, "nowhere")
	assert.True(t, failure.HasCode(err, failure.CodeLocationNotFound))
}

func TestLocations_Summary(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	createTestLocations(t, s, "a", "b")

	_, err := s.Mark(ctx, "a", Entry{Packet: "p2", Time: 200, Hash: "h2"})
	require.NoError(t, err)
	_, err = s.Mark(ctx, "a", Entry{Packet: "p1", Time: 100, Hash: "h1"})
	require.NoError(t, err)

	locs, err := s.Locations(ctx)
	require.NoError(t, err)
	require.Len(t, locs, 2)

	assert.Equal(t, "a", locs[0].Name)
	assert.Equal(t, 2, locs[0].Packets)
	assert.Equal(t, 200.0, locs[0].LastKnownTime)
	assert.Equal(t, int64(2), locs[0].Cursor)

	assert.Equal(t, "b", locs[1].Name)
	assert.Equal(t, 0, locs[1].Packets)
	assert.Equal(t, 0.0, locs[1].LastKnownTime)
	assert.Equal(t, map[string]any{}, locs[1].Args)
}

func TestSince_PagesByCursor(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	createTestLocations(t, s, "origin")

	mark := func(id string, time float64) {
		_, err := s.Mark(ctx, "origin", Entry{Packet: id, Time: time, Hash: "h-" + id})
		require.NoError(t, err)
	}
	mark("late", 300)
	mark("early", 100)

	first, cursor, err := s.Since(ctx, "origin", 0)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "late", first[0].Packet, "insertion order, not time order")

	none, again, err := s.Since(ctx, "origin", cursor)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Equal(t, cursor, again)

	mark("middle", 200)
	next, _, err := s.Since(ctx, "origin", cursor)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "middle", next[0].Packet)
}

func TestKnown(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	createTestLocations(t, s, "origin")

	_, err := s.Mark(ctx, "origin", Entry{Packet: "p1", Time: 1, Hash: "h1"})
	require.NoError(t, err)

	known, err := s.Known(ctx, "origin")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"p1": true}, known)
}

func TestMark_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	createTestLocations(t, s, "origin")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Mark(ctx, "origin", Entry{Packet: "p1", Time: 1, Hash: "h1"})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, inserted)
}
