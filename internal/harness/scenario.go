package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/outpack/internal/hash"
)

// Scenario defines a repository and the steps run against it.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// HashAlgorithm is the repository algorithm; sha256 when empty.
	HashAlgorithm string `yaml:"hash_algorithm,omitempty"`

	// RequireCompleteTree makes packet commits require every manifest file
	// in the object store.
	RequireCompleteTree bool `yaml:"require_complete_tree,omitempty"`

	// Locations are configured in addition to "local".
	Locations []LocationSpec `yaml:"locations,omitempty"`

	// Packets are added in order before any step runs.
	Packets []PacketSpec `yaml:"packets"`

	// Steps are run in order against the populated repository.
	Steps []Step `yaml:"steps"`
}

// LocationSpec configures a peer location.
type LocationSpec struct {
	Name string         `yaml:"name"`
	Type string         `yaml:"type"`
	Args map[string]any `yaml:"args,omitempty"`
}

// PacketSpec describes one packet of the fixture repository.
type PacketSpec struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Time       *float64       `yaml:"time,omitempty"`
	Parameters map[string]any `yaml:"parameters,omitempty"`
	Files      []FileSpec     `yaml:"files,omitempty"`
	Depends    []DependSpec   `yaml:"depends,omitempty"`

	// Objects stores file contents in the object store before committing.
	Objects bool `yaml:"objects,omitempty"`

	// Raw writes the record directly, skipping commit checks and the local
	// location. Used to build corrupt repositories.
	Raw bool `yaml:"raw,omitempty"`
}

// FileSpec is a manifest entry with its content.
type FileSpec struct {
	Path    string `yaml:"path"`
	Content string `yaml:"content"`
}

// DependSpec is a dependency with its file mapping.
type DependSpec struct {
	Packet string           `yaml:"packet"`
	Query  string           `yaml:"query,omitempty"`
	Files  []DependFileSpec `yaml:"files,omitempty"`
}

// DependFileSpec maps a file of the upstream packet into this one.
type DependFileSpec struct {
	Here  string `yaml:"here"`
	There string `yaml:"there"`
}

// Step is one operation and its expected outcome. Exactly one operation
// field must be set.
type Step struct {
	Query string         `yaml:"query,omitempty"`
	This  map[string]any `yaml:"this,omitempty"`

	MissingPackets *MissingPacketsStep `yaml:"missing_packets,omitempty"`

	// MissingFiles lists file contents; the harness hashes them.
	MissingFiles []string `yaml:"missing_files,omitempty"`

	CommitObject *CommitObjectStep `yaml:"commit_object,omitempty"`

	// Problems lists the index integrity problems as "<packet> <code>".
	Problems bool `yaml:"problems,omitempty"`

	// Expect is the exact expected result. Nil means unchecked.
	Expect []string `yaml:"expect,omitempty"`

	// Error is the expected error code.
	Error string `yaml:"error,omitempty"`
}

// MissingPacketsStep asks which packets a peer holding Known lacks.
type MissingPacketsStep struct {
	Known    []string `yaml:"known"`
	Unpacked bool     `yaml:"unpacked,omitempty"`
}

// CommitObjectStep commits Content under the hash of Claimed (or of
// Content when Claimed is empty). The result is the object's stored content.
type CommitObjectStep struct {
	Content string `yaml:"content"`
	Claimed string `yaml:"claimed,omitempty"`
}

// Step kinds, as reported in outcomes.
const (
	StepQuery          = "query"
	StepMissingPackets = "missing_packets"
	StepMissingFiles   = "missing_files"
	StepCommitObject   = "commit_object"
	StepProblems       = "problems"
)

// Kind returns which operation the step runs, or "" when none or several
// are set.
func (s *Step) Kind() string {
	var kinds []string
	if s.Query != "" {
		kinds = append(kinds, StepQuery)
	}
	if s.MissingPackets != nil {
		kinds = append(kinds, StepMissingPackets)
	}
	if s.MissingFiles != nil {
		kinds = append(kinds, StepMissingFiles)
	}
	if s.CommitObject != nil {
		kinds = append(kinds, StepCommitObject)
	}
	if s.Problems {
		kinds = append(kinds, StepProblems)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.HashAlgorithm != "" {
		if _, err := hash.ParseAlgorithm(s.HashAlgorithm); err != nil {
			return fmt.Errorf("hash_algorithm: %w", err)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	seen := map[string]bool{}
	for i, p := range s.Packets {
		if p.ID == "" {
			return fmt.Errorf("packets[%d]: id is required", i)
		}
		if p.Name == "" {
			return fmt.Errorf("packets[%d]: name is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("packets[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		for j, d := range p.Depends {
			if d.Packet == "" {
				return fmt.Errorf("packets[%d].depends[%d]: packet is required", i, j)
			}
		}
	}

	for i, l := range s.Locations {
		if l.Name == "" || l.Type == "" {
			return fmt.Errorf("locations[%d]: name and type are required", i)
		}
	}

	for i := range s.Steps {
		step := &s.Steps[i]
		if step.Kind() == "" {
			return fmt.Errorf("steps[%d]: exactly one of query, missing_packets, missing_files, commit_object, problems is required", i)
		}
		if step.This != nil && step.Query == "" {
			return fmt.Errorf("steps[%d]: this is only valid with query", i)
		}
		if step.Expect != nil && step.Error != "" {
			return fmt.Errorf("steps[%d]: expect and error are mutually exclusive", i)
		}
	}
	return nil
}
