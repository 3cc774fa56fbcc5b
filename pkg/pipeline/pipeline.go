// Package pipeline builds read, process, and compress task chains over a
// set of input files.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/afero"

	"github.com/djordjijek/taskforge/pkg/compression"
	"github.com/djordjijek/taskforge/pkg/forge"
)

// Worker pool tags used by the pipeline stages.
const (
	TagIO  = "io"
	TagCPU = "cpu"
)

// Params configures Build.
type Params struct {
	Fs        afero.Fs
	Inputs    []string // Paths of the files to process.
	OutputDir string
	Codec     compression.Codec

	// Logger for optional log messages.
	Logger log.Logger
}

// Chain holds the tasks processing one input file.
type Chain struct {
	Name     string
	Read     *forge.Task
	Process  *forge.Task
	Compress *forge.Task
}

// Pipeline is a set of independent chains.
type Pipeline struct {
	Chains []Chain
}

// Tasks returns the tasks of every chain.
func (p *Pipeline) Tasks() []*forge.Task {
	tasks := make([]*forge.Task, 0, 3*len(p.Chains))
	for _, c := range p.Chains {
		tasks = append(tasks, c.Read, c.Process, c.Compress)
	}
	return tasks
}

// Processed is the result of a process task.
type Processed struct {
	Data     []byte
	Lines    int
	Checksum uint64 // xxhash of Data.
}

// Output is the result of a compress task.
type Output struct {
	Path  string
	Codec compression.Codec

	UncompressedSize int
	CompressedSize   int64
	Checksum         uint64
}

// Build creates one chain per input. The stages of a chain are named
// read_<name>, process_<name>, and compress_<name>, where name is the base
// name of the input file.
func Build(p Params) (*Pipeline, error) {
	if p.Fs == nil {
		return nil, errors.New("no filesystem")
	}
	if p.Logger == nil {
		p.Logger = log.NewNopLogger()
	}

	var (
		pipeline Pipeline
		seen     = make(map[string]string, len(p.Inputs))
	)
	for _, input := range p.Inputs {
		name := filepath.Base(input)
		if other, exist := seen[name]; exist {
			return nil, fmt.Errorf("inputs %s and %s share the name %s", other, input, name)
		}
		seen[name] = input

		pipeline.Chains = append(pipeline.Chains, p.chain(name, input))
	}
	return &pipeline, nil
}

func (p Params) chain(name, input string) Chain {
	logger := log.With(p.Logger, "file", name)

	read := forge.NewTask(forge.Func(TagIO, func(context.Context) (any, error) {
		return afero.ReadFile(p.Fs, input)
	}), forge.WithID("read_"+name))

	process := forge.NewTask(forge.Func(TagCPU, func(context.Context) (any, error) {
		data, ok := read.Result().([]byte)
		if !ok {
			return nil, fmt.Errorf("unexpected result %T from %s", read.Result(), read.ID())
		}
		return Process(data), nil
	}), forge.WithID("process_"+name), forge.WithDependencies(read))

	compress := forge.NewTask(forge.Func(TagIO, func(context.Context) (any, error) {
		processed, ok := process.Result().(*Processed)
		if !ok {
			return nil, fmt.Errorf("unexpected result %T from %s", process.Result(), process.ID())
		}

		out, err := Write(p.Fs, filepath.Join(p.OutputDir, name+p.Codec.Extension()), p.Codec, processed)
		if err != nil {
			return nil, err
		}
		level.Debug(logger).Log("msg", "wrote output", "path", out.Path, "codec", out.Codec, "size", out.CompressedSize)
		return out, nil
	}), forge.WithID("compress_"+name), forge.WithDependencies(process))

	return Chain{Name: name, Read: read, Process: process, Compress: compress}
}

// Process normalizes line endings to \n, strips trailing whitespace from
// every line, and ensures non-empty data ends with a newline.
func Process(data []byte) *Processed {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))

	lines := bytes.Split(data, []byte("\n"))
	if n := len(lines); n > 0 && len(lines[n-1]) == 0 {
		lines = lines[:n-1]
	}

	var buf bytes.Buffer
	buf.Grow(len(data) + 1)
	for _, line := range lines {
		buf.Write(bytes.TrimRight(line, " \t\r"))
		buf.WriteByte('\n')
	}

	out := buf.Bytes()
	return &Processed{
		Data:     out,
		Lines:    len(lines),
		Checksum: xxhash.Sum64(out),
	}
}

// Write encodes processed with codec into a new file at path, creating
// parent directories as needed.
func Write(fs afero.Fs, path string, codec compression.Codec, processed *Processed) (out *Output, err error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	f, err := fs.Create(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			// Partial output is never left behind.
			_ = fs.Remove(path)
		}
	}()

	w, err := compression.NewWriter(codec, f)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(processed.Data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return &Output{
		Path:             path,
		Codec:            codec,
		UncompressedSize: len(processed.Data),
		CompressedSize:   info.Size(),
		Checksum:         processed.Checksum,
	}, nil
}

// Discover returns the paths of the regular files directly inside dir,
// sorted by name.
func Discover(fs afero.Fs, dir string) ([]string, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, info := range infos {
		if info.Mode().IsRegular() {
			paths = append(paths, filepath.Join(dir, info.Name()))
		}
	}
	slices.Sort(paths)
	return paths, nil
}
