package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"hwbot/internal/app"
	"hwbot/internal/poller"
)

func newOnceCommand(flags *rootFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single poll cycle and print its report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(flags.appOptions())
			if err != nil {
				return err
			}
			rep, runErr := a.RunOnce(cmd.Context())
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = a.Stop(stopCtx, app.StopOnceDone)
			if runErr != nil {
				return runErr
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(rep); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, reportRows(rep), []columnAlignment{alignLeft, alignLeft}))
			}
			if !rep.Outcome.Advances() {
				return fmt.Errorf("cycle ended with %s", rep.Outcome)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the cycle report as JSON")
	return cmd
}

func reportRows(rep poller.CycleReport) [][]string {
	rows := [][]string{
		{"cycle", rep.ID},
		{"stage", string(rep.Stage)},
		{"outcome", string(rep.Outcome)},
		{"cursor", fmt.Sprintf("%d -> %d", rep.CursorBefore, rep.CursorAfter)},
	}
	if rep.Name != "" {
		rows = append(rows, []string{"homework", rep.Name})
	}
	if rep.Status != "" {
		rows = append(rows, []string{"status", rep.Status})
	}
	if rep.Outcome == poller.OutcomeNotified {
		rows = append(rows,
			[]string{"delivered", strconv.FormatBool(rep.Delivered)},
			[]string{"attempts", strconv.Itoa(rep.Attempts)},
		)
	}
	if rep.Error != "" {
		rows = append(rows, []string{"error", rep.Error})
	}
	rows = append(rows, []string{"took", rep.Duration.Round(time.Millisecond).String()})
	return rows
}
