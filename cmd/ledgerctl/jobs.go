package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/assefaz/stockledger/internal/platform/cache"
	"github.com/assefaz/stockledger/internal/shared"
	"github.com/assefaz/stockledger/jobs"
)

func jobsCmd(cfg *ctlConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}

	var location string
	trigger := &cobra.Command{
		Use:       "trigger <task>",
		Short:     "Enqueue a task now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobs.TaskNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			var loc shared.Location
			if location != "" {
				parsed, err := shared.ParseLocation(location)
				if err != nil {
					return err
				}
				loc = parsed
			}
			task, err := jobs.NewTaskByName(args[0], loc)
			if err != nil {
				return err
			}
			client := jobs.NewClient(cache.QueueOpt(cfg.RedisAddr))
			defer client.Close()
			info, err := client.Enqueue(cmd.Context(), task)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return err
		},
	}
	trigger.Flags().StringVar(&location, "location", "", "restrict ledger:integrity to sede or 506")

	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Show queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			inspector := asynq.NewInspector(cache.QueueOpt(cfg.RedisAddr))
			defer inspector.Close()
			info, err := inspector.GetQueueInfo(jobs.QueueDefault)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED\tPROCESSED\tFAILED")
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
				info.Queue, info.Pending, info.Active, info.Scheduled, info.Retry, info.Archived, info.Processed, info.Failed)
			return w.Flush()
		},
	}

	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List cron entries registered by the worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			inspector := asynq.NewInspector(cache.QueueOpt(cfg.RedisAddr))
			defer inspector.Close()
			entries, err := inspector.SchedulerEntries()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SPEC\tTASK\tNEXT\tPREV")
			for _, e := range entries {
				prev := "-"
				if !e.Prev.IsZero() {
					prev = e.Prev.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Spec, e.Task.Type(), e.Next.Format("2006-01-02 15:04"), prev)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(trigger, inspect, scheduled)
	return cmd
}
