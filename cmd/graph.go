package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maxkimambo/dataflow/internal/dag"
	"github.com/maxkimambo/dataflow/internal/logger"
)

var graphCmd = &cobra.Command{
	Use:   "graph FILE",
	Short: "Render the dependency graph of a task file",
	Long: `Renders the resolved dependency graph as Graphviz DOT, JSON or text.
With --run, task states from a recorded run are overlaid on the graph.

Example:
dataflow graph pipeline.toml --format dot | dot -Tsvg > pipeline.svg
dataflow graph pipeline.toml --format json --output graph.json
dataflow graph pipeline.toml --run run-3f9a1c2b7d4e
`,
	Args: cobra.ExactArgs(1),
	RunE: runGraph,
}

func init() {
	graphCmd.Flags().StringP("format", "f", "text", "Output format: dot, json or text")
	graphCmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")
	graphCmd.Flags().String("run", "", "Overlay task states from a recorded run")
}

func runGraph(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	runID, _ := cmd.Flags().GetString("run")

	if format != "dot" && format != "json" && format != "text" {
		return fmt.Errorf("unknown format %q: must be dot, json or text", format)
	}

	_, g, err := loadPipeline(args[0])
	if err != nil {
		return err
	}

	viz := dag.NewVisualization(g)
	if runID != "" {
		states, err := recordedStates(cmd, runID)
		if err != nil {
			return err
		}
		viz.WithStates(states)
	}

	if output != "" {
		switch format {
		case "dot":
			err = viz.ExportToDOT(output)
		case "json":
			err = viz.ExportToJSON(output)
		default:
			err = viz.ExportToText(output)
		}
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		logger.User.Successf("Graph written to %s", output)
		return nil
	}

	w := cmd.OutOrStdout()
	switch format {
	case "dot":
		fmt.Fprint(w, viz.GenerateDOT())
	case "json":
		return viz.WriteJSON(w)
	default:
		fmt.Fprint(w, viz.GenerateTextSummary())
	}
	return nil
}

func recordedStates(cmd *cobra.Command, runID string) (map[string]dag.NodeState, error) {
	st, err := openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	taskRuns, err := st.ListTaskRuns(cmd.Context(), runID)
	if err != nil {
		return nil, err
	}
	if len(taskRuns) == 0 {
		if _, err := st.GetRun(cmd.Context(), runID); err != nil {
			return nil, err
		}
	}

	states := make(map[string]dag.NodeState, len(taskRuns))
	for _, tr := range taskRuns {
		states[tr.Task] = dag.NodeState{
			Status:    tr.State,
			StartTime: tr.StartedAt,
			EndTime:   tr.FinishedAt,
			Attempts:  tr.Attempts,
			Error:     tr.Error,
		}
	}
	return states, nil
}
