package main

import (
	"fmt"
	"io"
	"sort"

	"assetmig-go/internal/logs"

	"github.com/spf13/cobra"
)

func FailuresCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "failures [job...]",
		Short: "Summarize the failure logs of the last run of each job",
		RunE: func(command *cobra.Command, args []string) error {
			verbose, _ := command.Flags().GetBool("verbose")
			clearLogs, _ := command.Flags().GetBool("clear")
			return withApp(command, func(a *app) error {
				jobs, err := a.jobsFromArgs(args)
				if err != nil {
					return err
				}
				out := command.OutOrStdout()
				for _, job := range jobs {
					path := a.cfg.FailureLogPath(job)
					if clearLogs {
						if err := logs.ClearFailureLog(path); err != nil {
							return err
						}
						fmt.Fprintf(out, "%s: cleared %s\n", job.Name, path)
						continue
					}
					entries, err := logs.ReadFailureLog(path)
					if err != nil {
						return err
					}
					printFailures(out, job.Name, entries, verbose)
				}
				return nil
			})
		},
	}
	command.Flags().BoolP("verbose", "v", false, "Print every entry with its hints")
	command.Flags().Bool("clear", false, "Delete the failure logs instead of reading them")
	return command
}

func printFailures(out io.Writer, job string, entries []logs.FailureEntry, verbose bool) {
	if len(entries) == 0 {
		fmt.Fprintf(out, "%s: no failures\n", job)
		return
	}

	counts := logs.CountByKind(entries)
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	fmt.Fprintf(out, "%s: %d failures\n", job, len(entries))
	for _, k := range kinds {
		fmt.Fprintf(out, "  %-28s %d\n", k, counts[k])
	}
	if !verbose {
		return
	}
	for _, e := range entries {
		target := e.Asset
		if e.Property != "" {
			target += " " + e.Property
		}
		fmt.Fprintf(out, "  [%s] %s %s: %s\n", e.Level, e.Kind, target, e.Error)
		if e.Hints != "" {
			fmt.Fprintf(out, "      hint: %s\n", e.Hints)
		}
	}
}
