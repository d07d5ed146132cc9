package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"assetmig-go/internal/config"
	"assetmig-go/internal/migration"
	"assetmig-go/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func ExtractCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "extract [job...]",
		Short: "Snapshot the jobs' properties from the original tree into cache files",
		RunE: func(command *cobra.Command, args []string) error {
			return withApp(command, func(a *app) error {
				jobs, err := a.jobsFromArgs(args)
				if err != nil {
					return err
				}
				tree, err := a.openTree(dbFlag(command, a.cfg.OriginalDB), true)
				if err != nil {
					return err
				}
				for _, job := range jobs {
					if err := runExtract(command.Context(), a, tree, job, command.OutOrStdout()); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	command.Flags().String("db", "", "Tree database to read (default: original_db)")
	return command
}

func runExtract(ctx context.Context, a *app, tree *storage.Manager, job *config.Job, out io.Writer) error {
	failures, sink, err := a.failureSink(job)
	if err != nil {
		return err
	}

	extractor := migration.NewExtractor(tree, a.logger.With(zap.String("job", job.Name)))
	extractor.SetFailureSink(sink)

	path := a.cfg.CachePath(job)
	a.journal.Start("extract", job.Name, path)
	res, err := extractor.Extract(ctx, job.Assets, job.Properties, path)
	if res != nil {
		a.journal.Finish("extract", job.Name, map[string]int{
			"assets_written":     res.AssetsWritten,
			"assets_skipped":     res.AssetsSkipped,
			"properties_read":    res.PropertiesRead,
			"properties_skipped": res.PropertiesSkipped,
		}, err)
	}
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}

	fmt.Fprintf(out, "%s: wrote %d assets to %s (%d skipped; properties: %d read, %d skipped)\n",
		job.Name, res.AssetsWritten, path, res.AssetsSkipped, res.PropertiesRead, res.PropertiesSkipped)
	printFailureNote(out, failures.Count(), failures.Path())
	return nil
}

func ApplyCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "apply [job...]",
		Short: "Write the jobs' cached values onto the rewrite tree",
		RunE: func(command *cobra.Command, args []string) error {
			backup, _ := command.Flags().GetBool("backup")
			return withApp(command, func(a *app) error {
				jobs, err := a.jobsFromArgs(args)
				if err != nil {
					return err
				}
				dbPath := dbFlag(command, a.cfg.RewriteDB)
				tree, err := a.openWritableTree(dbPath)
				if err != nil {
					return err
				}
				if backup {
					if err := tree.Backup(dbPath + ".bak"); err != nil {
						return err
					}
				}
				for _, job := range jobs {
					if _, err := runApply(command.Context(), a, tree, job, command.OutOrStdout()); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	command.Flags().String("db", "", "Tree database to write (default: rewrite_db)")
	command.Flags().Bool("backup", false, "Copy the tree database to <db>.bak before applying")
	return command
}

func runApply(ctx context.Context, a *app, tree *storage.Manager, job *config.Job, out io.Writer) (*migration.Summary, error) {
	failures, sink, err := a.failureSink(job)
	if err != nil {
		return nil, err
	}

	applier := migration.NewApplier(tree, a.logger.With(zap.String("job", job.Name)))
	applier.SetFailureSink(sink)

	path := a.cfg.CachePath(job)
	a.journal.Start("apply", job.Name, path)
	summary, err := applier.Apply(ctx, path, job.Properties)
	if err != nil {
		a.journal.Finish("apply", job.Name, nil, err)
		return nil, fmt.Errorf("job %s: %w", job.Name, err)
	}
	a.journal.Finish("apply", job.Name, map[string]int{
		"assets_applied":      summary.AssetsApplied,
		"assets_failed":       summary.AssetsFailed,
		"properties_applied":  summary.PropertiesApplied,
		"properties_failed":   summary.PropertiesFailed,
		"properties_defaults": summary.PropertiesDefaults,
	}, nil)

	fmt.Fprintf(out, "%s: %s\n", job.Name, summary)
	printFailureNote(out, failures.Count(), failures.Path())
	return summary, nil
}

func VerifyCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "verify [job...]",
		Short: "Check that the rewrite tree holds the jobs' cached values",
		Long: "verify decodes each job's cache file against the rewrite tree exactly as apply\n" +
			"would, without saving, and reports the matched, mismatched and missing\n" +
			"properties of every asset. It fails when any job does not verify.",
		RunE: func(command *cobra.Command, args []string) error {
			verbose, _ := command.Flags().GetBool("verbose")
			return withApp(command, func(a *app) error {
				jobs, err := a.jobsFromArgs(args)
				if err != nil {
					return err
				}
				tree, err := a.openTree(dbFlag(command, a.cfg.RewriteDB), true)
				if err != nil {
					return err
				}
				var failed []string
				for _, job := range jobs {
					report, err := runVerify(command.Context(), a, tree, job, command.OutOrStdout(), verbose)
					if err != nil {
						return err
					}
					if !report.OK() {
						failed = append(failed, job.Name)
					}
				}
				if len(failed) > 0 {
					return fmt.Errorf("verification failed for %s", strings.Join(failed, ", "))
				}
				return nil
			})
		},
	}
	command.Flags().String("db", "", "Tree database to check (default: rewrite_db)")
	command.Flags().BoolP("verbose", "v", false, "List every asset with its property results")
	return command
}

func runVerify(ctx context.Context, a *app, tree *storage.Manager, job *config.Job, out io.Writer, verbose bool) (*migration.Report, error) {
	failures, sink, err := a.failureSink(job)
	if err != nil {
		return nil, err
	}

	verifier := migration.NewVerifier(tree, a.logger.With(zap.String("job", job.Name)))
	verifier.SetFailureSink(sink)

	path := a.cfg.CachePath(job)
	a.journal.Start("verify", job.Name, path)
	report, err := verifier.Verify(ctx, path, job.Properties)
	if err != nil {
		a.journal.Finish("verify", job.Name, nil, err)
		return nil, fmt.Errorf("job %s: %w", job.Name, err)
	}
	a.journal.Finish("verify", job.Name, map[string]int{
		"assets_checked":        len(report.Assets),
		"assets_missing":        report.AssetsMissing,
		"properties_matched":    report.PropertiesMatched,
		"properties_mismatched": report.PropertiesMismatched,
		"properties_missing":    report.PropertiesMissing,
	}, nil)

	status := "PASS"
	if !report.OK() {
		status = "FAIL"
	}
	fmt.Fprintf(out, "%s: %s %s\n", job.Name, status, report)
	for _, c := range report.Assets {
		if !verbose && c.OK() {
			continue
		}
		fmt.Fprintf(out, "  %s: matched [%s], mismatched [%s], missing [%s]\n", c.Path,
			strings.Join(c.Matched, ", "), strings.Join(c.Mismatched, ", "), strings.Join(c.Missing, ", "))
	}
	printFailureNote(out, failures.Count(), failures.Path())
	return report, nil
}

func ReparentCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "reparent [job...]",
		Short: "Move the jobs' assets onto their new parent class in the rewrite tree",
		RunE: func(command *cobra.Command, args []string) error {
			return withApp(command, func(a *app) error {
				jobs, err := a.jobsFromArgs(args)
				if err != nil {
					return err
				}
				tree, err := a.openWritableTree(dbFlag(command, a.cfg.RewriteDB))
				if err != nil {
					return err
				}
				for _, job := range jobs {
					if job.Reparent == "" {
						if len(args) > 0 {
							return fmt.Errorf("job %s declares no reparent class", job.Name)
						}
						continue
					}
					if err := runReparent(command.Context(), a, tree, job, command.OutOrStdout()); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	command.Flags().String("db", "", "Tree database to write (default: rewrite_db)")
	return command
}

func runReparent(ctx context.Context, a *app, tree *storage.Manager, job *config.Job, out io.Writer) error {
	logger := a.logger.Named("reparent").With(zap.String("job", job.Name))

	paths, err := job.Assets.Resolve(ctx, tree)
	if err != nil {
		return fmt.Errorf("job %s: failed to resolve assets: %w", job.Name, err)
	}

	failures, sink, err := a.failureSink(job)
	if err != nil {
		return err
	}

	a.journal.Start("reparent", job.Name, "")
	moved, failed := 0, 0
	for _, path := range paths {
		res, err := tree.ReparentAsset(ctx, path, job.Reparent)
		if err != nil {
			failed++
			sink.Record("ReparentFailed", path, "", err)
			logger.Warn("Reparent failed", zap.String("asset", path), zap.Error(err))
			continue
		}
		moved++
		logger.Info("Reparented asset",
			zap.String("asset", path),
			zap.String("parent", job.Reparent),
			zap.Strings("reset", res.Reset),
			zap.Strings("dropped", res.Dropped))
		if len(res.Reset) > 0 || len(res.Dropped) > 0 {
			fmt.Fprintf(out, "  %s: reset [%s], dropped [%s]\n",
				path, strings.Join(res.Reset, ", "), strings.Join(res.Dropped, ", "))
		}
	}
	a.journal.Finish("reparent", job.Name, map[string]int{"assets_reparented": moved, "assets_failed": failed}, nil)

	fmt.Fprintf(out, "%s: reparented %d assets onto %s, failed %d\n", job.Name, moved, job.Reparent, failed)
	printFailureNote(out, failures.Count(), failures.Path())
	return nil
}

func JobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the configured jobs",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, args []string) error {
			return withApp(command, func(a *app) error {
				if err := a.requireConfig(); err != nil {
					return err
				}
				printJobs(command.OutOrStdout(), a.cfg)
				return nil
			})
		},
	}
}

func printJobs(out io.Writer, cfg *config.Config) {
	for _, job := range cfg.Jobs {
		names := make([]string, 0, len(job.Properties))
		for _, d := range job.Properties {
			names = append(names, d.Name)
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", job.Name, cfg.CachePath(job), strings.Join(names, ","))
		if job.Reparent != "" {
			fmt.Fprintf(out, "\treparent: %s\n", job.Reparent)
		}
	}
}

func printFailureNote(out io.Writer, count int, path string) {
	if count > 0 {
		fmt.Fprintf(out, "  %d failures logged to %s\n", count, path)
	}
}
