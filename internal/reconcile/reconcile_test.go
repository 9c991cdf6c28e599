package reconcile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/outpack/internal/failure"
	"github.com/roach88/outpack/internal/hash"
	"github.com/roach88/outpack/internal/index"
	"github.com/roach88/outpack/internal/metadata"
	"github.com/roach88/outpack/internal/reconcile"
	"github.com/roach88/outpack/internal/store"
	"github.com/roach88/outpack/internal/testutil"
)

func newReconciler(t *testing.T, fixture *testutil.Repo, unpacked map[string]bool) *reconcile.Reconciler {
	t.Helper()
	snap, err := metadata.New(fixture.Root, fixture.Algorithm()).Load(context.Background())
	require.NoError(t, err)
	idx := index.Build(snap, fixture.Algorithm())
	return reconcile.New(idx, store.New(fixture.Root, fixture.Algorithm()), unpacked)
}

func scenario(t *testing.T) *testutil.Repo {
	t.Helper()
	fixture := testutil.NewRepo(t)
	fixture.Packet("P1", "a").At(100).Commit()
	fixture.Packet("P2", "a").At(200).Commit()
	fixture.Packet("P3", "b").At(150).Depends("P1").Commit()
	return fixture
}

func TestMissingPackets(t *testing.T) {
	r := newReconciler(t, scenario(t), nil)

	tests := []struct {
		name  string
		known []string
		want  []string
	}{
		{"scenario", []string{"P1", "P2"}, []string{"P3"}},
		{"none known", nil, []string{"P1", "P3", "P2"}},
		{"all known", []string{"P3", "P2", "P1"}, []string{}},
		{"duplicates and strangers", []string{"P1", "P1", "X9"}, []string{"P3", "P2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.MissingPackets(tt.known, false))
		})
	}
}

func TestMissingPacketsRestrictedToUnpacked(t *testing.T) {
	r := newReconciler(t, scenario(t), map[string]bool{"P2": true, "P3": true})

	assert.Equal(t, []string{"P3", "P2"}, r.MissingPackets(nil, true))
	assert.Equal(t, []string{"P2"}, r.MissingPackets([]string{"P3"}, true))
	assert.Equal(t, []string{"P1", "P2"}, r.MissingPackets([]string{"P3"}, false))
}

func TestMissingPacketsIsSetDifference(t *testing.T) {
	fixture := testutil.NewRepo(t)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		fixture.Packet(id, "x").Commit()
	}
	r := newReconciler(t, fixture, nil)

	all := []string{"a", "b", "c", "d", "e", "f"}
	for mask := 0; mask < 1<<len(all); mask++ {
		var known, want []string
		want = []string{}
		for i, id := range all {
			if mask&(1<<i) != 0 {
				known = append(known, id)
			} else {
				want = append(want, id)
			}
		}
		assert.Equal(t, want, r.MissingPackets(known, false), "known=%v", known)
	}
}

func TestMissingFiles(t *testing.T) {
	fixture := testutil.NewRepo(t)
	present := fixture.WriteObject([]byte("present"))
	absent := hash.DigestString("absent", fixture.Algorithm()).String()
	r := newReconciler(t, fixture, nil)

	missing, err := r.MissingFiles([]string{present, absent, absent})
	require.NoError(t, err)
	assert.Equal(t, []string{absent}, missing)

	_, err = r.MissingFiles([]string{"not-a-hash"})
	assert.True(t, failure.HasCode(err, failure.CodeMalformedHash))
}

func TestMissingFilesFor(t *testing.T) {
	fixture := testutil.NewRepo(t)
	fixture.Packet("P1", "a").WithObjects().File("shared.txt", "shared").File("one.txt", "one").Commit()
	fixture.Packet("P2", "a").File("shared.txt", "shared").File("two.txt", "two").Commit()
	r := newReconciler(t, fixture, nil)

	files, err := r.FilesFor([]string{"P2", "P1"})
	require.NoError(t, err)
	assert.Len(t, files, 3, "shared content is listed once")

	missing, err := r.MissingFilesFor([]string{"P1", "P2"})
	require.NoError(t, err)
	assert.Equal(t, []string{hash.DigestString("two", fixture.Algorithm()).String()}, missing)

	_, err = r.MissingFilesFor([]string{"P9"})
	assert.True(t, failure.IsNotFound(err))
}
