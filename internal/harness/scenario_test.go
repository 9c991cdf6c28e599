package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/provenance.yaml")
	require.NoError(t, err)

	assert.Equal(t, "provenance", s.Name)
	require.Len(t, s.Packets, 4)
	require.NotNil(t, s.Packets[0].Time)
	assert.Equal(t, 100.0, *s.Packets[0].Time)
	assert.Equal(t, map[string]any{"n": 1}, s.Packets[0].Parameters)
	assert.Equal(t, []DependFileSpec{{Here: "input.csv", There: "data.csv"}}, s.Packets[2].Depends[0].Files)
	assert.True(t, s.Packets[3].Raw)

	require.Len(t, s.Steps, 11)
	assert.Equal(t, StepQuery, s.Steps[0].Kind())
	assert.Equal(t, StepMissingPackets, s.Steps[6].Kind())
	assert.Equal(t, StepMissingFiles, s.Steps[8].Kind())
	assert.Equal(t, StepCommitObject, s.Steps[9].Kind())
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/does-not-exist.yaml")
	assert.Error(t, err)
}

func TestParseScenario_EmptyExpectIsChecked(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: n
description: d
steps:
  - query: "latest()"
    expect: []
`))
	require.NoError(t, err)
	assert.NotNil(t, s.Steps[0].Expect, "an explicit empty list is an expectation")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: n\ndescription: d\nstep: []\n",
			want: "field step not found",
		},
		{
			name: "missing name",
			yaml: "description: d\nsteps: [{problems: true}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: n\nsteps: [{problems: true}]\n",
			want: "description is required",
		},
		{
			name: "no steps",
			yaml: "name: n\ndescription: d\n",
			want: "steps list is required",
		},
		{
			name: "bad algorithm",
			yaml: "name: n\ndescription: d\nhash_algorithm: crc\nsteps: [{problems: true}]\n",
			want: "hash_algorithm",
		},
		{
			name: "duplicate packet",
			yaml: "name: n\ndescription: d\npackets: [{id: a, name: x}, {id: a, name: y}]\nsteps: [{problems: true}]\n",
			want: "duplicate id",
		},
		{
			name: "packet without name",
			yaml: "name: n\ndescription: d\npackets: [{id: a}]\nsteps: [{problems: true}]\n",
			want: "name is required",
		},
		{
			name: "step without operation",
			yaml: "name: n\ndescription: d\nsteps: [{expect: [a]}]\n",
			want: "exactly one of",
		},
		{
			name: "step with two operations",
			yaml: "name: n\ndescription: d\nsteps: [{query: latest(), problems: true}]\n",
			want: "exactly one of",
		},
		{
			name: "this without query",
			yaml: "name: n\ndescription: d\nsteps: [{problems: true, this: {a: 1}}]\n",
			want: "this is only valid",
		},
		{
			name: "expect and error",
			yaml: "name: n\ndescription: d\nsteps: [{query: latest(), expect: [], error: PARSE_ERROR}]\n",
			want: "mutually exclusive",
		},
		{
			name: "location without type",
			yaml: "name: n\ndescription: d\nlocations: [{name: origin}]\nsteps: [{problems: true}]\n",
			want: "name and type are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
