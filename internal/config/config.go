// Package config loads and writes the repository configuration and defines
// the on-disk layout of an outpack root.
//
// Layout under <root>/.outpack:
//
//	config.json                  repository configuration
//	metadata/<packet-id>         one immutable record per packet
//	files/<alg>/<hex[:2]>/<hex[2:]>  content-addressed objects
//	location/locations.db        location inventory
//	staging/                     in-flight writes, renamed into place
//
// The configuration is validated against an embedded CUE schema, which also
// supplies defaults for optional fields.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/outpack/internal/failure"
	"github.com/roach88/outpack/internal/fsutil"
	"github.com/roach88/outpack/internal/hash"
)

//go:embed schema.cue
var schemaSource string

// SchemaVersion is written into new configurations.
const SchemaVersion = "0.1.1"

// LocalLocation is the name of the location describing this repository.
const LocalLocation = "local"

// Config is the parsed .outpack/config.json.
type Config struct {
	SchemaVersion string     `json:"schema_version"`
	Core          Core       `json:"core"`
	Location      []Location `json:"location"`
}

// Core holds repository-wide settings.
type Core struct {
	HashAlgorithm       hash.Algorithm `json:"hash_algorithm"`
	PathArchive         *string        `json:"path_archive"`
	UseFileStore        bool           `json:"use_file_store"`
	RequireCompleteTree bool           `json:"require_complete_tree"`
}

// Location is a configured peer.
type Location struct {
	Name string         `json:"name"`
	Type string         `json:"type"`
	Args map[string]any `json:"args"`
}

// Default returns the configuration written by Init when none is given.
func Default() *Config {
	return &Config{
		SchemaVersion: SchemaVersion,
		Core: Core{
			HashAlgorithm: hash.Default,
			UseFileStore:  true,
		},
		Location: []Location{{Name: LocalLocation, Type: "local", Args: map[string]any{}}},
	}
}

// FindLocation returns the configured location with the given name.
func (c *Config) FindLocation(name string) (Location, bool) {
	for _, l := range c.Location {
		if l.Name == name {
			return l, true
		}
	}
	return Location{}, false
}

// Dir returns the .outpack directory of root.
func Dir(root string) string { return filepath.Join(root, ".outpack") }

// Path returns the config file path of root.
func Path(root string) string { return filepath.Join(Dir(root), "config.json") }

// MetadataDir returns the metadata area of root.
func MetadataDir(root string) string { return filepath.Join(Dir(root), "metadata") }

// FilesDir returns the object area of root.
func FilesDir(root string) string { return filepath.Join(Dir(root), "files") }

// LocationDir returns the directory holding the location inventory.
func LocationDir(root string) string { return filepath.Join(Dir(root), "location") }

// StagingDir returns the staging area of root. It lives on the same
// filesystem as every destination so renames are atomic.
func StagingDir(root string) string { return filepath.Join(Dir(root), "staging") }

// Load reads and validates the configuration of root.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(Path(root))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, failure.Wrap(failure.KindStore, failure.CodeConfigInvalid,
				fmt.Sprintf("%s is not an outpack root", root), err)
		}
		return nil, failure.IO("read config", err)
	}
	return Parse(data)
}

// Parse validates raw configuration JSON against the schema and decodes it,
// filling in schema defaults.
func Parse(data []byte) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		// The schema is embedded; failing to compile it is a build defect.
		panic(fmt.Sprintf("config: invalid embedded schema: %v", err))
	}

	value := ctx.CompileBytes(data, cue.Filename("config.json"))
	if err := value.Err(); err != nil {
		return nil, invalid(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, invalid(err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, invalid(err)
	}

	seen := make(map[string]bool, len(cfg.Location))
	for _, l := range cfg.Location {
		if seen[l.Name] {
			return nil, failure.New(failure.KindStore, failure.CodeConfigInvalid,
				fmt.Sprintf("duplicate location %q", l.Name))
		}
		seen[l.Name] = true
	}

	return &cfg, nil
}

// invalid converts CUE errors into a CONFIG_INVALID error carrying the first
// error's position.
func invalid(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return failure.Wrap(failure.KindStore, failure.CodeConfigInvalid, "invalid configuration", err)
	}
	first := errs[0]
	e := failure.New(failure.KindStore, failure.CodeConfigInvalid, first.Error())
	if positions := cueerrors.Positions(first); len(positions) > 0 && positions[0].IsValid() {
		e.WithDetail("position", fmt.Sprintf("%s:%d:%d",
			positions[0].Filename(), positions[0].Line(), positions[0].Column()))
	}
	if len(errs) > 1 {
		e.WithDetail("errors", fmt.Sprintf("%d", len(errs)))
	}
	return e
}

// Init creates the repository skeleton under root and writes cfg (or the
// default configuration). Fails if root already holds a configuration.
func Init(root string, cfg *Config) (*Config, error) {
	if cfg == nil {
		cfg = Default()
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	// Round-trip through the schema so Init never writes what Load rejects.
	validated, err := Parse(data)
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{MetadataDir(root), FilesDir(root), LocationDir(root), StagingDir(root)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, failure.IO("create repository directory", err)
		}
	}

	created, err := fsutil.WriteOnce(StagingDir(root), Path(root), data)
	if err != nil {
		return nil, failure.IO("write config", err)
	}
	if !created {
		return nil, failure.New(failure.KindStore, failure.CodeConfigInvalid,
			fmt.Sprintf("%s is already an outpack root", root))
	}
	return validated, nil
}
