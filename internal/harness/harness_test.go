package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenariosGolden(t *testing.T) {
	for _, name := range []string{"provenance", "integrity"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_ReportsMismatches(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: mismatches
description: every kind of expectation failure
packets:
  - { id: P1, name: a }
  - { id: P2, name: a }
steps:
  - query: "latest(name == 'a')"
    expect: [P1]
  - query: "name == 'a'"
    error: AMBIGUOUS_QUERY
  - query: "single(name == 'a')"
    error: PARSE_ERROR
  - query: "single(name == 'a')"
  - query: "name == 'a'"
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "expected [P1], got [P2]")
	assert.Contains(t, result.Errors[1], "expected error AMBIGUOUS_QUERY, got result [P1, P2]")
	assert.Contains(t, result.Errors[2], "expected error PARSE_ERROR, got AMBIGUOUS_QUERY")
	assert.Contains(t, result.Errors[3], "unexpected error AMBIGUOUS_QUERY")
	assert.Len(t, result.Outcomes, 5)
}

func TestRun_PacketSetupFailure(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: dangling
description: committed packets must have their dependencies
packets:
  - id: P1
    name: a
    depends: [{ packet: missing }]
steps:
  - problems: true
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DANGLING_DEPENDENCY")
}

func TestRun_RequireCompleteTree(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: complete
description: files must be stored before their packet
require_complete_tree: true
packets:
  - id: P1
    name: a
    objects: true
    files: [{ path: a.txt, content: alpha }]
steps:
  - missing_files: [alpha]
    expect: []
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	s.Packets[0].Objects = false
	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INCOMPLETE_PACKET")
}

func TestRun_HashAlgorithm(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: md5
description: scenarios can use another algorithm
hash_algorithm: md5
packets:
  - { id: P1, name: a, objects: true, files: [{ path: f, content: hello }] }
steps:
  - missing_files: [hello, bye]
    expect: [bye]
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestCheckOutcome(t *testing.T) {
	step := &Step{Query: "q"}
	assert.Empty(t, CheckOutcome(step, Outcome{Result: []string{"a"}}), "no expectation, no error")
	assert.Len(t, CheckOutcome(step, Outcome{Error: "X"}), 1)

	step.Expect = []string{}
	assert.Empty(t, CheckOutcome(step, Outcome{Result: []string{}}))
	assert.Len(t, CheckOutcome(step, Outcome{Result: []string{"a"}}), 1)
}
