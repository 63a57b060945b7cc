package cmd

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/maxkimambo/dataflow/internal/server"
	"github.com/maxkimambo/dataflow/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Starts an HTTP server that accepts pipeline submissions and runs them in
the background. Runs are recorded in the same store the CLI uses.

Endpoints:
  GET  /v1/health
  POST /v1/runs
  GET  /v1/runs
  GET  /v1/runs/{id}
  GET  /v1/runs/{id}/tasks
  POST /v1/runs/{id}/cancel

Example:
dataflow serve --port 7480
`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "Address to bind (default from config)")
	serveCmd.Flags().Int("port", 0, "Port to listen on (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if err := validateConfig(); err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs := service.NewRunService(st, cfg.SchedulerOptions(), shellRunnerFactory(nil))
	srv := server.New(cfg.ServerAddr(), runs, st)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
