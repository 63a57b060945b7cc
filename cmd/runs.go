package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maxkimambo/dataflow/internal/store"
	"github.com/maxkimambo/dataflow/internal/utils"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded runs",
	Long:  `Commands for listing recorded runs and showing the per-task state of a run.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Show a run and the state of each of its tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)

	runsListCmd.Flags().String("status", "", "Only list runs with this status (pending, running, succeeded, failed, aborted)")
	runsListCmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	runsShowCmd.Flags().Bool("output-json", false, "Print the run as JSON")
}

func runRunsList(cmd *cobra.Command, args []string) error {
	statusFlag, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")

	opts := store.ListOptions{Limit: limit}
	if statusFlag != "" {
		status, err := store.ParseRunStatus(statusFlag)
		if err != nil {
			return err
		}
		opts.Status = status
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, total, err := st.ListRuns(cmd.Context(), opts)
	if err != nil {
		return err
	}

	w := out(cmd)
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	table := utils.NewTableFormatter("ID", "NAME", "STATUS", "TASKS", "CREATED", "DURATION")
	for _, r := range runs {
		table.AddRow(r.ID, r.Name, string(r.Status), fmt.Sprint(r.TaskCount),
			formatTime(&r.CreatedAt), formatSpan(r.StartedAt, r.FinishedAt))
	}
	fmt.Fprint(w, table.String())
	if total > len(runs) {
		fmt.Fprintf(w, "Showing %d of %d runs\n", len(runs), total)
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("output-json")

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	tasks, err := st.ListTaskRuns(cmd.Context(), run.ID)
	if err != nil {
		return err
	}

	w := out(cmd)
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*store.Run
			Tasks []*store.TaskRun `json:"tasks"`
		}{run, tasks})
	}

	report := utils.NewReportBuilder().
		Header(fmt.Sprintf("Run %s", run.ID)).
		AddKeyValue("Name", run.Name).
		AddKeyValue("Status", string(run.Status)).
		AddKeyValue("Created", formatTime(&run.CreatedAt)).
		AddKeyValue("Started", formatTime(run.StartedAt)).
		AddKeyValue("Finished", formatTime(run.FinishedAt)).
		AddKeyValue("Duration", formatSpan(run.StartedAt, run.FinishedAt))
	if run.Error != "" {
		report.AddKeyValue("Error", run.Error)
	}
	fmt.Fprintln(w, report.Build())
	fmt.Fprintln(w)

	table := utils.NewTableFormatter("#", "TASK", "STATE", "ATTEMPTS", "DURATION", "ERROR")
	for _, tr := range tasks {
		table.AddRow(fmt.Sprint(tr.Position+1), tr.Task, tr.State, fmt.Sprint(tr.Attempts),
			formatSpan(tr.StartedAt, tr.FinishedAt), tr.Error)
	}
	fmt.Fprint(w, table.String())
	return nil
}
