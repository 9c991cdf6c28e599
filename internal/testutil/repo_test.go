package testutil

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/outpack/internal/config"
	"github.com/roach88/outpack/internal/packet"
)

func TestPacketClockAdvances(t *testing.T) {
	clock := NewPacketClock(1000, 10)
	assert.Equal(t, 1000.0, clock.Current())
	assert.Equal(t, 1010.0, clock.Next())
	assert.Equal(t, 1020.0, clock.Next())
	assert.Equal(t, 1020.0, clock.Current())

	clock.Reset()
	assert.Equal(t, 1010.0, clock.Next())
}

func TestPacketClockConcurrent(t *testing.T) {
	clock := NewPacketClock(0, 1)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Next()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50.0, clock.Current())
}

func TestBuilderWritesDecodableRecord(t *testing.T) {
	repo := NewRepo(t)

	p := repo.Packet("P1", "a").Param("n", 1).File("data.csv", "x,y\n").Commit()
	assert.Equal(t, 100.0, p.Time)

	data, err := os.ReadFile(filepath.Join(config.MetadataDir(repo.Root), "P1"))
	require.NoError(t, err)

	decoded, err := packet.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "a", decoded.Name)
	assert.Equal(t, packet.Number(1), decoded.Parameters.Get("n"))
	require.Len(t, decoded.Files, 1)
	assert.Equal(t, int64(4), decoded.Files[0].Size)
}

func TestBuilderWithObjects(t *testing.T) {
	repo := NewRepo(t)

	p := repo.Packet("P1", "a").WithObjects().File("data.csv", "content").Commit()

	_, err := os.Stat(filepath.Join(config.FilesDir(repo.Root), "sha256"))
	require.NoError(t, err)
	assert.NotEmpty(t, p.Files[0].Hash)
}
