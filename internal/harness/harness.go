package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/outpack/internal/config"
	"github.com/roach88/outpack/internal/failure"
	"github.com/roach88/outpack/internal/fsutil"
	"github.com/roach88/outpack/internal/hash"
	"github.com/roach88/outpack/internal/outpack"
	"github.com/roach88/outpack/internal/packet"
	"github.com/roach88/outpack/internal/testutil"
)

// Harness runs one scenario against its own repository.
type Harness struct {
	root   *outpack.Root
	alg    hash.Algorithm
	clock  *testutil.PacketClock
	logger *slog.Logger

	// contents maps hashes back to the content the scenario named them by.
	contents map[string]string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh temporary root that is removed afterwards.
// Execution flow:
// 1. Initialise the root from the scenario configuration
// 2. Add packets in order
// 3. Run steps, recording one outcome each
// 4. Check outcomes against step expectations
//
// An error is returned only when the repository cannot be built; step
// failures are reported in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "outpack-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario root: %w", err)
	}
	defer os.RemoveAll(dir)

	cfg := config.Default()
	if scenario.HashAlgorithm != "" {
		cfg.Core.HashAlgorithm = hash.Algorithm(scenario.HashAlgorithm)
	}
	cfg.Core.RequireCompleteTree = scenario.RequireCompleteTree
	for _, l := range scenario.Locations {
		args := l.Args
		if args == nil {
			args = map[string]any{}
		}
		cfg.Location = append(cfg.Location, config.Location{Name: l.Name, Type: l.Type, Args: args})
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root, err := outpack.Init(ctx, dir, cfg, outpack.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialise scenario root: %w", err)
	}
	defer root.Close()

	h := &Harness{
		root:     root,
		alg:      cfg.Core.HashAlgorithm,
		clock:    testutil.NewPacketClock(0, 100),
		logger:   logger,
		contents: map[string]string{},
	}

	for i, spec := range scenario.Packets {
		if err := h.addPacket(ctx, spec); err != nil {
			return nil, fmt.Errorf("packets[%d] %s: %w", i, spec.ID, err)
		}
	}

	result := NewResult()
	for i := range scenario.Steps {
		result.AddOutcome(h.runStep(ctx, i, &scenario.Steps[i]))
	}
	EvaluateOutcomes(result, scenario.Steps)
	return result, nil
}

func (h *Harness) hashOf(content string) string {
	s := hash.DigestString(content, h.alg).String()
	h.contents[s] = content
	return s
}

func (h *Harness) addPacket(ctx context.Context, spec PacketSpec) error {
	p := &packet.Packet{
		SchemaVersion: packet.SchemaVersion,
		ID:            spec.ID,
		Name:          spec.Name,
		Parameters:    packet.Parameters{},
	}
	if spec.Time != nil {
		p.Time = *spec.Time
	} else {
		p.Time = h.clock.Next()
	}
	p.End = p.Time

	for k, v := range spec.Parameters {
		value, err := packet.ValueOf(v)
		if err != nil {
			return fmt.Errorf("parameter %s: %w", k, err)
		}
		p.Parameters[k] = value
	}

	for _, f := range spec.Files {
		fh := h.hashOf(f.Content)
		p.Files = append(p.Files, packet.File{Path: f.Path, Size: int64(len(f.Content)), Hash: fh})
		if spec.Objects {
			if err := h.root.CommitObject(ctx, fh, []byte(f.Content)); err != nil {
				return err
			}
		}
	}

	for _, d := range spec.Depends {
		dep := packet.Dependency{Packet: d.Packet, Query: d.Query, Files: []packet.DependencyFile{}}
		for _, df := range d.Files {
			dep.Files = append(dep.Files, packet.DependencyFile{Here: df.Here, There: df.There})
		}
		p.Depends = append(p.Depends, dep)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	if spec.Raw {
		final := filepath.Join(config.MetadataDir(h.root.Path()), spec.ID)
		return fsutil.WriteAtomic(config.StagingDir(h.root.Path()), final, data)
	}
	_, err = h.root.CommitPacket(ctx, hash.Digest(data, h.alg).String(), data)
	return err
}

func (h *Harness) runStep(ctx context.Context, i int, step *Step) Outcome {
	o := Outcome{Step: i, Kind: step.Kind()}

	var (
		result []string
		err    error
	)
	switch o.Kind {
	case StepQuery:
		o.Input = step.Query
		var env packet.Parameters
		if step.This != nil {
			if env, err = toParameters(step.This); err != nil {
				break
			}
		}
		result, err = h.root.EvaluateQuery(ctx, step.Query, env)

	case StepMissingPackets:
		o.Input = fmt.Sprintf("known=%s unpacked=%t", formatList(step.MissingPackets.Known), step.MissingPackets.Unpacked)
		result, err = h.root.MissingPackets(ctx, step.MissingPackets.Known, step.MissingPackets.Unpacked)

	case StepMissingFiles:
		o.Input = formatList(step.MissingFiles)
		hashes := make([]string, len(step.MissingFiles))
		for k, content := range step.MissingFiles {
			hashes[k] = h.hashOf(content)
		}
		var missing []string
		if missing, err = h.root.MissingFiles(hashes); err == nil {
			result = h.contentsOf(missing)
		}

	case StepCommitObject:
		c := step.CommitObject
		claimed := c.Content
		if c.Claimed != "" {
			claimed = c.Claimed
		}
		o.Input = fmt.Sprintf("%q as %q", c.Content, claimed)
		result, err = h.commitObject(ctx, h.hashOf(claimed), c.Content)

	case StepProblems:
		o.Input = "index"
		var problems []*failure.Error
		if problems, err = h.root.Problems(ctx); err == nil {
			result = make([]string, len(problems))
			for k, p := range problems {
				result[k] = p.PacketID + " " + p.Code
			}
		}
	}

	if err != nil {
		o.Error = failure.CodeOf(err)
		if o.Error == "" {
			o.Error = "UNCLASSIFIED"
		}
		h.logger.Debug("step failed", "step", i, "error", err)
		return o
	}
	o.Result = result
	if o.Result == nil {
		o.Result = []string{}
	}
	return o
}

func (h *Harness) commitObject(ctx context.Context, claimed, content string) ([]string, error) {
	if err := h.root.CommitObject(ctx, claimed, []byte(content)); err != nil {
		return nil, err
	}
	f, err := h.root.OpenObject(claimed)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	stored, err := io.ReadAll(f)
	if err != nil {
		return nil, failure.IO("read object", err)
	}
	return []string{string(stored)}, nil
}

func (h *Harness) contentsOf(hashes []string) []string {
	out := make([]string, len(hashes))
	for i, s := range hashes {
		if c, ok := h.contents[s]; ok {
			out[i] = c
		} else {
			out[i] = s
		}
	}
	return out
}

func toParameters(m map[string]any) (packet.Parameters, error) {
	params := make(packet.Parameters, len(m))
	for k, v := range m {
		value, err := packet.ValueOf(v)
		if err != nil {
			return nil, fmt.Errorf("this.%s: %w", k, err)
		}
		params[k] = value
	}
	return params, nil
}
