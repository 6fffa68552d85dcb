package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Терминальные статусы run для watch.
var terminalRunStatuses = map[string]bool{
	"SUCCEEDED": true,
	"FAILED":    true,
	"ABORTED":   true,
}

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage pipeline runs",
	}

	cmd.AddCommand(
		newRunSubmitCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
		newRunTasksCmd(clientFn, outputFn),
		newRunAbortCmd(clientFn, outputFn),
		newRunResumeCmd(clientFn, outputFn),
		newRunWatchCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var specFile string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a pipeline for execution",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			spec, err := os.ReadFile(specFile)
			if err != nil {
				return fmt.Errorf("read pipeline spec: %w", err)
			}

			resp, err := client.SubmitRun(spec)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run submitted: %s", resp.RunID))
			out.Submitted(resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&specFile, "file", "f", "", "Pipeline spec file (JSON)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show run status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			snap, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			out.Snapshot(snap)
			return nil
		},
	}
}

func newRunTasksCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks RUN_ID",
		Short: "List task records in a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			records, err := client.ListTasks(args[0])
			if err != nil {
				return err
			}

			out.Tasks(records)
			return nil
		},
	}
}

func newRunAbortCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "abort RUN_ID",
		Short: "Abort a running run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.AbortRun(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run abort requested: %s (%s)", run.ID, run.Status))
			out.Run(*run)
			return nil
		},
	}
}

func newRunResumeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var specFile string

	cmd := &cobra.Command{
		Use:   "resume RUN_ID",
		Short: "Resume a non-terminal run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var spec []byte
			if specFile != "" {
				var err error
				spec, err = os.ReadFile(specFile)
				if err != nil {
					return fmt.Errorf("read pipeline spec: %w", err)
				}
			}

			resp, err := client.ResumeRun(args[0], spec)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run resumed: %s", resp.RunID))
			out.Submitted(resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&specFile, "file", "f", "", "Pipeline spec file for fingerprint check (optional)")

	return cmd
}

func newRunWatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch RUN_ID",
		Short: "Poll run status until it reaches a terminal state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			for {
				snap, err := client.GetRun(args[0])
				if err != nil {
					return err
				}

				out.Success(fmt.Sprintf("%s: %s %v",
					time.Now().Format(time.TimeOnly), snap.Run.Status, snap.Counts))

				if terminalRunStatuses[snap.Run.Status] {
					out.Snapshot(snap)
					if snap.Run.Status != "SUCCEEDED" {
						return fmt.Errorf("run finished with status %s", snap.Run.Status)
					}
					return nil
				}

				time.Sleep(interval)
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval")

	return cmd
}

