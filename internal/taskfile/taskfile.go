// Package taskfile reads and writes declarative TOML task files.
//
// A task file holds one [[task]] table per task:
//
//	name = "training"
//
//	[[task]]
//	name = "train_a"
//	setup = "pip install -r requirements.txt"
//	run = "python3 train_a.py"
//	[task.resources]
//	cloud = "gcp"
//	[task.dependson]
//	preprocess = ["/data/train_a"]
//
// Dependencies may also be listed as depends_on = ["preprocess:/data/train_a"],
// which keeps declaration order. Entries of a dependson table are ordered by
// upstream task name.
package taskfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/maxkimambo/dataflow/internal/task"
)

// ErrInvalidTaskFile is returned when a task file cannot be parsed into tasks
var ErrInvalidTaskFile = errors.New("invalid task file")

// Pipeline is the content of a task file
type Pipeline struct {
	Name  string
	Tasks []*task.Task
}

type fileContent struct {
	Name  string     `toml:"name,omitempty"`
	Tasks []fileTask `toml:"task"`
}

type fileTask struct {
	Name      string              `toml:"name"`
	Setup     string              `toml:"setup,omitempty"`
	Run       string              `toml:"run"`
	DependsOn []string            `toml:"depends_on,omitempty"`
	Resources map[string]string   `toml:"resources,omitempty"`
	DepTable  map[string][]string `toml:"dependson,omitempty"`
}

// Load reads and parses a task file
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file %s: %w", path, err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes task file content
func Parse(data []byte) (*Pipeline, error) {
	var raw fileContent
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTaskFile, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys: %s", ErrInvalidTaskFile, strings.Join(keys, ", "))
	}
	if len(raw.Tasks) == 0 {
		return nil, fmt.Errorf("%w: no [[task]] tables found", ErrInvalidTaskFile)
	}

	p := &Pipeline{Name: raw.Name}
	for i, ft := range raw.Tasks {
		t, err := ft.toTask()
		if err != nil {
			return nil, fmt.Errorf("%w: task #%d: %w", ErrInvalidTaskFile, i+1, err)
		}
		p.Tasks = append(p.Tasks, t)
	}
	return p, nil
}

func (ft fileTask) toTask() (*task.Task, error) {
	opts := []task.Option{task.WithSetup(ft.Setup)}

	if len(ft.Resources) > 0 {
		res := task.Resources{Cloud: ft.Resources["cloud"]}
		for k, v := range ft.Resources {
			if k == "cloud" {
				continue
			}
			if res.Extra == nil {
				res.Extra = make(map[string]string)
			}
			res.Extra[k] = v
		}
		opts = append(opts, task.WithResources(res))
	}

	opts = append(opts, task.WithDependsOn(ft.DependsOn...))

	upstream := make([]string, 0, len(ft.DepTable))
	for name := range ft.DepTable {
		upstream = append(upstream, name)
	}
	sort.Strings(upstream)
	for _, name := range upstream {
		refs := []string{name}
		if artifacts := ft.DepTable[name]; len(artifacts) > 0 {
			refs = refs[:0]
			for _, a := range artifacts {
				refs = append(refs, name+":"+a)
			}
		}
		opts = append(opts, task.WithDependsOn(refs...))
	}

	return task.New(ft.Name, ft.Run, opts...)
}

// Encode writes the pipeline as a task file. Dependencies are written as
// depends_on arrays so their declaration order survives a round trip.
func Encode(w io.Writer, p *Pipeline) error {
	raw := fileContent{Name: p.Name}
	for _, t := range p.Tasks {
		ft := fileTask{
			Name:  t.Name,
			Setup: t.Setup,
			Run:   t.Run,
		}
		if t.Resources.Cloud != "" || len(t.Resources.Extra) > 0 {
			ft.Resources = make(map[string]string, len(t.Resources.Extra)+1)
			for k, v := range t.Resources.Extra {
				ft.Resources[k] = v
			}
			if t.Resources.Cloud != "" {
				ft.Resources["cloud"] = t.Resources.Cloud
			}
		}
		for _, dep := range t.Dependencies() {
			ft.DependsOn = append(ft.DependsOn, dep.Refs()...)
		}
		raw.Tasks = append(raw.Tasks, ft)
	}

	if err := toml.NewEncoder(w).Encode(raw); err != nil {
		return fmt.Errorf("failed to encode task file: %w", err)
	}
	return nil
}

// Save writes the pipeline to path
func Save(path string, p *Pipeline) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create task file %s: %w", path, err)
	}
	if err := Encode(f, p); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
