package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/dataflow/internal/task"
)

func TestParseResourceFilter(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		want    *ResourceFilter
		wantErr bool
	}{
		{
			name:   "empty filter",
			filter: "",
			want:   nil,
		},
		{
			name:   "simple key=value",
			filter: "cloud=aws",
			want:   &ResourceFilter{Key: "cloud", Value: "aws"},
		},
		{
			name:   "value with spaces",
			filter: "zone=us east 1",
			want:   &ResourceFilter{Key: "zone", Value: "us east 1"},
		},
		{
			name:   "value containing equals",
			filter: "args=a=b",
			want:   &ResourceFilter{Key: "args", Value: "a=b"},
		},
		{
			name:   "key only (presence check)",
			filter: "gpu",
			want:   &ResourceFilter{Key: "gpu", Presence: true},
		},
		{
			name:   "key with spaces trimmed",
			filter: "  cloud  =  gcp  ",
			want:   &ResourceFilter{Key: "cloud", Value: "gcp"},
		},
		{
			name:    "empty key",
			filter:  "=value",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResourceFilter(tt.filter)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResourceFilter_Matches(t *testing.T) {
	aws := task.MustNew("train", "true", task.WithResources(task.Resources{
		Cloud: "aws",
		Extra: map[string]string{"gpu": "a100"},
	}))
	local := task.MustNew("report", "true")

	tests := []struct {
		filter string
		task   *task.Task
		want   bool
	}{
		{"", aws, true},
		{"", local, true},
		{"cloud=aws", aws, true},
		{"cloud=gcp", aws, false},
		{"cloud=aws", local, false},
		{"cloud", aws, true},
		{"cloud", local, false},
		{"gpu", aws, true},
		{"gpu=a100", aws, true},
		{"gpu=v100", aws, false},
		{"gpu", local, false},
	}

	for _, tt := range tests {
		t.Run(tt.filter+"/"+tt.task.Name, func(t *testing.T) {
			f, err := ParseResourceFilter(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Matches(tt.task))
		})
	}
}

func TestResourceFilter_String(t *testing.T) {
	var none *ResourceFilter
	assert.Equal(t, "", none.String())

	f, err := ParseResourceFilter("cloud=aws")
	require.NoError(t, err)
	assert.Equal(t, "cloud=aws", f.String())

	f, err = ParseResourceFilter("gpu")
	require.NoError(t, err)
	assert.Equal(t, "gpu", f.String())
}
