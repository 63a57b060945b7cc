package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReportBuilder(t *testing.T) {
	report := NewReportBuilder().WithWidth(5).
		Header("Plan").
		AddKeyValue("Tasks", "2").
		Section("Order").
		AddNumbered(1, "fetch").
		AddIndented("needs nothing", 2).
		AddLine("end").
		Build()

	assert.Equal(t, "Plan\n=====\nTasks: 2\n\nOrder\n1. fetch\n    needs nothing\nend", report)
}
