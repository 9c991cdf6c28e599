package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/outpack/internal/failure"
	"github.com/roach88/outpack/internal/index"
	"github.com/roach88/outpack/internal/metadata"
	"github.com/roach88/outpack/internal/packet"
	"github.com/roach88/outpack/internal/query"
	"github.com/roach88/outpack/internal/testutil"
)

func buildIndex(t *testing.T, fixture *testutil.Repo) *index.Index {
	t.Helper()
	snap, err := metadata.New(fixture.Root, fixture.Algorithm()).Load(context.Background())
	require.NoError(t, err)
	return index.Build(snap, fixture.Algorithm())
}

// scenarioIndex holds P1{100,a}, P2{200,a}, P3{150,b, depends P1}.
func scenarioIndex(t *testing.T) *index.Index {
	t.Helper()
	fixture := testutil.NewRepo(t)
	fixture.Packet("P1", "a").At(100).Commit()
	fixture.Packet("P2", "a").At(200).Commit()
	fixture.Packet("P3", "b").At(150).Depends("P1").Commit()
	return buildIndex(t, fixture)
}

// chainIndex holds a diamond plus a tail:
//
//	A <- B <- D <- E
//	A <- C <- D
//
// with parameters used by comparison tests.
func chainIndex(t *testing.T) *index.Index {
	t.Helper()
	fixture := testutil.NewRepo(t)
	fixture.Packet("A", "root").At(1).Param("n", 1).Param("s", "apple").Param("ok", true).Commit()
	fixture.Packet("B", "mid").At(2).Param("n", 2).Param("s", "banana").Depends("A").Commit()
	fixture.Packet("C", "mid").At(3).Param("n", 10).Param("s", "cherry").Param("ok", false).Depends("A").Commit()
	fixture.Packet("D", "join").At(4).Param("n", "2").Depends("B").Depends("C").Commit()
	fixture.Packet("E", "leaf").At(5).Depends("D").Commit()
	return buildIndex(t, fixture)
}

func eval(t *testing.T, idx *index.Index, q string, opts ...query.Option) []string {
	t.Helper()
	ids, err := query.Evaluate(idx, q, opts...)
	require.NoError(t, err, q)
	return ids
}

func TestScenario(t *testing.T) {
	idx := scenarioIndex(t)

	assert.Equal(t, []string{"P2"}, eval(t, idx, `latest(name == 'a')`))
	assert.Equal(t, []string{"P3"}, eval(t, idx, `usedby(id == 'P1')`))
	assert.Equal(t, []string{"P1"}, eval(t, idx, `depends(id == 'P3')`))
	assert.Equal(t, []string{"P1", "P3", "P2"}, eval(t, idx, `!(name == 'zzz')`))
	assert.Equal(t, []string{"P2"}, eval(t, idx, `latest()`))
}

func TestResultsOrderedByTime(t *testing.T) {
	idx := scenarioIndex(t)
	assert.Equal(t, []string{"P1", "P3", "P2"}, eval(t, idx, `name == 'a' || name == 'b'`))
}

func TestIDShorthand(t *testing.T) {
	idx := scenarioIndex(t)
	assert.Equal(t, []string{"P3"}, eval(t, idx, `"P3"`))
	assert.Empty(t, eval(t, idx, `"P9"`))
}

func TestLatestTieBreaksOnID(t *testing.T) {
	fixture := testutil.NewRepo(t)
	fixture.Packet("x1", "a").At(100).Commit()
	fixture.Packet("x3", "a").At(100).Commit()
	fixture.Packet("x2", "a").At(100).Commit()
	idx := buildIndex(t, fixture)

	assert.Equal(t, []string{"x3"}, eval(t, idx, `latest(name == 'a')`))
	assert.Empty(t, eval(t, idx, `latest(name == 'b')`), "empty match set is not an error")
}

func TestSingle(t *testing.T) {
	idx := scenarioIndex(t)

	assert.Equal(t, []string{"P3"}, eval(t, idx, `single(name == 'b')`))

	for q, count := range map[string]string{
		`single(name == 'a')`: "2",
		`single(name == 'c')`: "0",
	} {
		_, err := query.Evaluate(idx, q)
		require.Error(t, err, q)
		assert.True(t, query.IsAmbiguous(err))

		var ee *query.EvalError
		require.ErrorAs(t, err, &ee)
		assert.Equal(t, count, ee.Details["count"])
		assert.Equal(t, failure.KindEvaluation, failure.KindOf(err))
	}
}

func TestClosures(t *testing.T) {
	idx := chainIndex(t)

	tests := []struct {
		query string
		want  []string
	}{
		{`usedby(id == 'A')`, []string{"B", "C", "D", "E"}},
		{`usedby(id == 'A', 1)`, []string{"B", "C"}},
		{`usedby(id == 'A', 2)`, []string{"B", "C", "D"}},
		{`depends(id == 'E')`, []string{"A", "B", "C", "D"}},
		{`depends(id == 'E', 1)`, []string{"D"}},
		{`uses(id == 'D', 1)`, []string{"B", "C"}},
		{`usedby(id == 'E')`, []string{}},
		{`usedby(name == 'mid')`, []string{"D", "E"}},
		{`usedby(id == 'A') || id == 'A'`, []string{"A", "B", "C", "D", "E"}},
		{`usedby(name == 'root' || name == 'mid')`, []string{"D", "E"}},
		{`latest(usedby(id == 'A', 1))`, []string{"C"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, eval(t, idx, tt.query))
		})
	}
}

func TestClosuresAreConsistentInverses(t *testing.T) {
	idx := chainIndex(t)

	for _, a := range idx.IDs() {
		for _, b := range idx.IDs() {
			upstream := eval(t, idx, `depends(id == '`+b+`')`)
			downstream := eval(t, idx, `usedby(id == '`+a+`')`)
			assert.Equal(t, contains(upstream, a), contains(downstream, b),
				"A=%s B=%s", a, b)
		}
	}
}

func TestClosureTerminatesOnCycles(t *testing.T) {
	fixture := testutil.NewRepo(t)
	fixture.Packet("A", "x").At(1).Depends("C").Commit()
	fixture.Packet("B", "x").At(2).Depends("A").Commit()
	fixture.Packet("C", "x").At(3).Depends("B").Commit()
	idx := buildIndex(t, fixture)

	assert.Equal(t, []string{"B", "C"}, eval(t, idx, `usedby(id == 'A')`))
	assert.Equal(t, []string{"B", "C"}, eval(t, idx, `depends(id == 'A')`))
}

func TestComparisons(t *testing.T) {
	idx := chainIndex(t)

	tests := []struct {
		query string
		want  []string
	}{
		{`parameter:n == 2`, []string{"B"}},
		{`parameter:n != 2`, []string{"A", "C"}},
		{`parameter:n > 1`, []string{"B", "C"}},
		{`parameter:n >= 2 && parameter:n <= 10`, []string{"B", "C"}},
		{`parameter:n < 10`, []string{"A", "B"}},
		{`parameter:n == "2"`, []string{"D"}},
		{`parameter:s < "b"`, []string{"A"}},
		{`parameter:s >= "banana"`, []string{"B", "C"}},
		{`parameter:ok == true`, []string{"A"}},
		{`parameter:ok != true`, []string{"C"}},
		{`parameter:ok > false`, []string{}},
		{`parameter:ok == 1`, []string{}},
		{`parameter:missing == 1`, []string{}},
		{`parameter:missing != 1`, []string{}},
		{`!(parameter:missing == 1)`, []string{"A", "B", "C", "D", "E"}},
		{`1 < parameter:n`, []string{"B", "C"}},
		{`name == id`, []string{}},
		{`name > "l"`, []string{"A", "B", "C", "E"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := eval(t, idx, tt.query)
			idx.SortIDs(tt.want)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStringComparisonNormalisesUnicode(t *testing.T) {
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"

	fixture := testutil.NewRepo(t)
	fixture.Packet("P1", composed).Commit()
	fixture.Packet("P2", decomposed).Commit()
	idx := buildIndex(t, fixture)

	assert.Equal(t, []string{"P1", "P2"}, eval(t, idx, "name == '"+decomposed+"'"))
	assert.Equal(t, []string{"P1", "P2"}, eval(t, idx, "name >= '"+composed+"' && name <= '"+decomposed+"'"))
}

func TestThisScope(t *testing.T) {
	idx := chainIndex(t)
	env := packet.Parameters{"n": packet.Number(2), "s": packet.String("cherry")}

	assert.Equal(t, []string{"B"}, eval(t, idx, `parameter:n == this:n`, query.WithThis(env)))
	assert.Equal(t, []string{"C"}, eval(t, idx, `parameter:s == this:s`, query.WithThis(env)))
	assert.Empty(t, eval(t, idx, `parameter:n == this:absent`, query.WithThis(env)))
	assert.Empty(t, eval(t, idx, `this:n == 1`, query.WithThis(nil)))
}

func TestThisWithoutEnvironment(t *testing.T) {
	idx := chainIndex(t)

	for _, q := range []string{
		`parameter:n == this:n`,
		`name == 'nothing' && this:n == 1`,
		`latest(usedby(this:x == 1))`,
	} {
		_, err := query.Evaluate(idx, q)
		var ee *query.EvalError
		require.ErrorAs(t, err, &ee, q)
		assert.Equal(t, query.CodeUnknownLookupScope, ee.Code)
	}
}

func TestShortCircuit(t *testing.T) {
	idx := scenarioIndex(t)

	// The right operand would fail; short-circuiting never evaluates it.
	assert.Empty(t, eval(t, idx, `name == 'zzz' && single(name == 'a')`))
	assert.Equal(t, []string{"P1", "P3", "P2"}, eval(t, idx, `!(name == 'zzz') || single(name == 'a')`))

	_, err := query.Evaluate(idx, `name == 'a' && single(name == 'a')`)
	assert.True(t, query.IsAmbiguous(err))
}

func TestEvaluateEmptyIndex(t *testing.T) {
	idx := buildIndex(t, testutil.NewRepo(t))

	assert.Empty(t, eval(t, idx, `latest()`))
	assert.Empty(t, eval(t, idx, `!(name == 'a')`))
	assert.Empty(t, eval(t, idx, `usedby(name == 'a')`))
}

func TestEvaluateIsRepeatable(t *testing.T) {
	idx := chainIndex(t)
	expr, err := query.Parse(`usedby(name == 'mid') || parameter:n > 1`)
	require.NoError(t, err)

	first, err := query.Eval(idx, expr)
	require.NoError(t, err)
	second, err := query.Eval(idx, expr)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
