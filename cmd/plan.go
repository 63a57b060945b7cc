package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maxkimambo/dataflow/internal/dag"
	"github.com/maxkimambo/dataflow/internal/utils"
)

var planCmd = &cobra.Command{
	Use:   "plan FILE",
	Short: "Resolve a task file and print the execution order",
	Long: `Resolves the dependencies declared in a task file and prints the order
tasks would run in, grouped into stages of tasks that may run in parallel.
Nothing is executed.

Example:
dataflow plan pipeline.toml
dataflow plan pipeline.toml --resource cloud=gcp
`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().String("resource", "", "Only list tasks whose resources match key=value, or that set key")
}

func runPlan(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetString("resource")
	filter, err := utils.ParseResourceFilter(raw)
	if err != nil {
		return err
	}

	p, g, err := loadPipeline(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintln(out(cmd), renderPlan(p.Name, g, filter))
	return nil
}

func renderPlan(name string, g *dag.Graph, filter *utils.ResourceFilter) string {
	report := utils.NewReportBuilder().
		Header(fmt.Sprintf("Plan: %s", name)).
		AddKeyValue("Tasks", fmt.Sprint(g.Len())).
		AddKeyValue("Dependencies", fmt.Sprint(len(g.Edges())))
	if filter != nil {
		report.AddKeyValue("Filter", filter.String())
	}

	report.Section("Execution order:")
	for i, name := range g.TopologicalOrder() {
		t, _ := g.Task(name)
		if !filter.Matches(t) {
			continue
		}

		line := name
		if t.Resources.Cloud != "" {
			line += fmt.Sprintf(" [%s]", t.Resources.Cloud)
		}
		report.AddNumbered(i+1, line)

		for _, e := range g.Dependencies(name) {
			needs := "after " + e.From
			if len(e.Artifacts) > 0 {
				needs += ": " + strings.Join(e.Artifacts, ", ")
			}
			report.AddIndented(needs, 2)
		}
	}

	report.Section("Parallel stages:")
	for i, level := range g.Levels() {
		report.AddIndented(fmt.Sprintf("Stage %d: %s", i+1, strings.Join(level, ", ")), 1)
	}

	return report.Build()
}
