package taskfile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/dataflow/internal/resolver"
	"github.com/maxkimambo/dataflow/internal/task"
)

const trainingFile = `
name = "training"

[[task]]
name = "preprocess"
run = "python3 preprocess.py"
[task.resources]
cloud = "gcp"
accelerators = "none"

[[task]]
name = "train_a"
setup = "pip install -r requirements.txt"
run = "python3 train_a.py"
[task.dependson]
preprocess = ["/data/train_a"]

[[task]]
name = "train_b"
run = "python3 train_b.py"
depends_on = ["preprocess:/data/train_b"]

[[task]]
name = "evaluate"
run = "python3 evaluate.py"
depends_on = ["train_b:gs://models/b"]
[task.dependson]
train_a = []
train_b = ["/metrics/b"]
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(trainingFile))
	require.NoError(t, err)

	assert.Equal(t, "training", p.Name)
	require.Len(t, p.Tasks, 4)

	pre := p.Tasks[0]
	assert.Equal(t, "preprocess", pre.Name)
	assert.Equal(t, "gcp", pre.Resources.Cloud)
	assert.Equal(t, map[string]string{"accelerators": "none"}, pre.Resources.Extra)

	trainA := p.Tasks[1]
	assert.Equal(t, "pip install -r requirements.txt", trainA.Setup)
	assert.Equal(t, []task.Dependency{{Task: "preprocess", Artifacts: []string{"/data/train_a"}}}, trainA.Dependencies())

	evaluate := p.Tasks[3]
	assert.Equal(t, []task.Dependency{
		{Task: "train_b", Artifacts: []string{"gs://models/b", "/metrics/b"}},
		{Task: "train_a"},
	}, evaluate.Dependencies())
}

func TestParse_MatchesConstructionStyle(t *testing.T) {
	p, err := Parse([]byte(trainingFile))
	require.NoError(t, err)
	fromFile, err := resolver.Resolve(p.Tasks)
	require.NoError(t, err)

	pre := task.MustNew("preprocess", "python3 preprocess.py", task.WithResources(task.Resources{
		Cloud: "gcp",
		Extra: map[string]string{"accelerators": "none"},
	}))
	constructed, err := resolver.Resolve([]*task.Task{
		pre,
		task.MustNew("train_a", "python3 train_a.py",
			task.WithSetup("pip install -r requirements.txt"),
			task.WithDependsOn("preprocess:/data/train_a")),
		task.MustNew("train_b", "python3 train_b.py", task.After(pre, "/data/train_b")),
		task.MustNew("evaluate", "python3 evaluate.py",
			task.WithDependsOn("train_b:gs://models/b", "train_a", "train_b:/metrics/b")),
	})
	require.NoError(t, err)

	assert.Equal(t, constructed.Names(), fromFile.Names())
	assert.Equal(t, constructed.Edges(), fromFile.Edges())
}

func TestEncode_RoundTrip(t *testing.T) {
	p, err := Parse([]byte(trainingFile))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, p))

	again, err := Parse(buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, p.Name, again.Name)
	require.Len(t, again.Tasks, len(p.Tasks))
	for i := range p.Tasks {
		assert.Equal(t, p.Tasks[i].Name, again.Tasks[i].Name)
		assert.Equal(t, p.Tasks[i].Run, again.Tasks[i].Run)
		assert.Equal(t, p.Tasks[i].Setup, again.Tasks[i].Setup)
		assert.Equal(t, p.Tasks[i].Resources, again.Tasks[i].Resources)
		assert.Equal(t, p.Tasks[i].Dependencies(), again.Tasks[i].Dependencies())
	}

	g1, err := resolver.Resolve(p.Tasks)
	require.NoError(t, err)
	g2, err := resolver.Resolve(again.Tasks)
	require.NoError(t, err)
	assert.Equal(t, g1.Edges(), g2.Edges())
}

func TestLoadAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.toml")
	require.NoError(t, os.WriteFile(path, []byte(trainingFile), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, p.Tasks, 4)

	out := filepath.Join(dir, "copy.toml")
	require.NoError(t, Save(out, p))

	copied, err := Load(out)
	require.NoError(t, err)
	assert.Len(t, copied.Tasks, 4)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read task file")
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"invalid toml", "this is not valid toml {{{", ""},
		{"no tasks", `name = "empty"`, "no [[task]] tables"},
		{"unknown key", "[[task]]\nname = \"a\"\nrun = \"x\"\ncommand = \"y\"\n", "unknown keys: task.command"},
		{"missing run", "[[task]]\nname = \"a\"\n", "task #1"},
		{"bad reference", "[[task]]\nname = \"a\"\nrun = \"x\"\ndepends_on = [\":/data\"]\n", "no task name"},
		{"empty artifact", "[[task]]\nname = \"a\"\nrun = \"x\"\n[task.dependson]\nb = [\"\"]\n", "empty artifact"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTaskFile)
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}
