package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coolbeans/lagen/pkg/archive"
	"github.com/coolbeans/lagen/pkg/consolidate"
	"github.com/coolbeans/lagen/pkg/discovery"
	"github.com/coolbeans/lagen/pkg/sfs"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "lagen",
		Short: "Consolidated Swedish statute acquisition",
		Long: `Lagen keeps a local copy of the Swedish Code of Statutes (SFS) current.

It discovers newly published SFS numbers in the government register,
downloads the consolidated text of the base acts they amend, and builds
consolidated documents with their amendment register and provenance:
  - scan: walk the register forward from the last known number
  - fetch: resolve a single number and refresh its base acts
  - build: assemble consolidated documents from stored texts
  - import-archive: load a legacy download tarball`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "lagen.yaml", "Configuration file (missing file means defaults)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides data_dir and LAGEN_DATA_DIR)")

	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(buildCmd())
	rootCmd.AddCommand(importArchiveCmd())
	rootCmd.AddCommand(stateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Discover new SFS numbers and refresh the base acts they amend",
		Long: `Retry the revisit queue, then scan forward from the saved cursor until
two consecutive numbers are missing from the register.

Without a saved cursor the scan starts just past the highest act with a
stored text, or at the first number of the current year when nothing is
stored. --from overrides the saved cursor.

The scan state is only saved after a complete pass; an interrupted scan
starts over from the previous state next time.

Examples:
  lagen scan
  lagen scan --from 2019:1000
  lagen scan --format json --max-steps 500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			outputFormat, _ := cmd.Flags().GetString("format")
			maxSteps, _ := cmd.Flags().GetInt("max-steps")
			concurrency, _ := cmd.Flags().GetInt("revisit-concurrency")

			return withApp(cmd, func(application *app) error {
				statePath := application.settings.StatePath()
				state, err := discovery.LoadState(statePath)
				if err != nil {
					return err
				}
				if state, err = scanStart(state, from, application.store.ListTexts); err != nil {
					return err
				}

				scanner := discovery.NewScanner(application.resolver(),
					discovery.WithLogger(application.logger),
					discovery.WithMetrics(application.metrics),
					discovery.WithRevisitConcurrency(concurrency),
					discovery.WithMaxSteps(maxSteps))

				next, report, err := scanner.Run(cmd.Context(), state)
				if err != nil {
					return fmt.Errorf("scan interrupted, state not saved: %w", err)
				}
				if err := discovery.SaveState(statePath, next); err != nil {
					return err
				}

				fmt.Print(report.Format(outputFormat))
				return nil
			})
		},
	}

	cmd.Flags().String("from", "", "SFS number to start the forward scan at (overrides the saved cursor)")
	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	cmd.Flags().Int("max-steps", 0, "Stop the forward scan after this many numbers (0 = no limit)")
	cmd.Flags().Int("revisit-concurrency", discovery.DefaultRevisitConcurrency, "Revisit queue entries resolved at once")

	return cmd
}

// scanStart applies --from to the loaded state. Without it, a state that has
// no cursor yet is seeded from the acts already stored.
func scanStart(state discovery.State, from string, storedTexts func() ([]sfs.Identifier, error)) (discovery.State, error) {
	if from != "" {
		identifier, err := sfs.Parse(from)
		if err != nil {
			return state, err
		}
		if !identifier.IsCanonical() {
			return state, sfs.NonCanonical(identifier)
		}
		state.NextIdentifier = identifier
		return state, nil
	}
	if !state.NextIdentifier.IsZero() {
		return state, nil
	}

	stored, err := storedTexts()
	if err != nil {
		return state, err
	}
	return state.SeedFrom(stored), nil
}

func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <sfs-number>...",
		Short: "Resolve SFS numbers and refresh the text of their base acts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identifiers, err := parseIdentifiers(args)
			if err != nil {
				return err
			}

			return withApp(cmd, func(application *app) error {
				identifierResolver := application.resolver()
				failed := 0
				for _, identifier := range identifiers {
					outcome := identifierResolver.Resolve(cmd.Context(), identifier)
					line := fmt.Sprintf("%-14s %-14s", identifier, outcome.Status)
					if len(outcome.BaseActs) > 0 {
						line += " base: " + joinIdentifiers(outcome.BaseActs)
					}
					if outcome.Err != nil {
						line += " (" + outcome.Err.Error() + ")"
						failed++
					}
					fmt.Println(line)
				}
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d numbers could not be brought up to date", failed, len(identifiers))
				}
				return nil
			})
		},
	}
}

func buildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [sfs-number...]",
		Short: "Build consolidated documents from stored act texts",
		Long: `Build and write the consolidated document of each base act: canonical
JSON under parsed/ and its provenance graph as Turtle under distilled/.

Examples:
  lagen build 1998:204
  lagen build --all --concurrency 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			buildAll, _ := cmd.Flags().GetBool("all")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			concurrency, _ := cmd.Flags().GetInt("concurrency")

			if buildAll == (len(args) > 0) {
				return fmt.Errorf("pass either SFS numbers or --all")
			}
			identifiers, err := parseIdentifiers(args)
			if err != nil {
				return err
			}

			return withApp(cmd, func(application *app) error {
				if buildAll {
					if identifiers, err = application.store.ListTexts(); err != nil {
						return err
					}
				}
				if concurrency <= 0 {
					concurrency = application.settings.Build.Concurrency
				}
				keepExpired := application.settings.Build.KeepExpired
				if cmd.Flags().Changed("keep-expired") {
					keepExpired, _ = cmd.Flags().GetBool("keep-expired")
				}

				builder := consolidate.NewBuilder(application.store, application.entries,
					consolidate.WithLogger(application.logger),
					consolidate.WithBaseURI(application.settings.BaseURI),
					consolidate.KeepExpired(keepExpired),
					consolidate.WithConcurrency(concurrency),
					consolidate.WithMetrics(application.metrics))

				results, err := builder.BuildAll(cmd.Context(), identifiers)
				if err != nil {
					return err
				}
				return writeBuildResults(builder, results, dryRun)
			})
		},
	}

	cmd.Flags().Bool("all", false, "Build every act with a stored text")
	cmd.Flags().Bool("dry-run", false, "Build without writing output")
	cmd.Flags().Bool("keep-expired", false, "Build acts whose repeal date has passed")
	cmd.Flags().Int("concurrency", 0, "Builds run at once (default from build.concurrency)")

	return cmd
}

func writeBuildResults(builder *consolidate.Builder, results map[sfs.Identifier]consolidate.BuildResult, dryRun bool) error {
	identifiers := make([]sfs.Identifier, 0, len(results))
	for identifier := range results {
		identifiers = append(identifiers, identifier)
	}
	sort.Slice(identifiers, func(left, right int) bool {
		return identifiers[left].Before(identifiers[right])
	})

	built, expired, failed := 0, 0, 0
	for _, identifier := range identifiers {
		result := results[identifier]
		switch {
		case errors.Is(result.Err, sfs.ErrExpired):
			expired++
			continue
		case result.Err != nil:
			fmt.Printf("[FAIL] %-14s %v\n", identifier, result.Err)
			failed++
			continue
		}

		if !dryRun {
			if err := builder.Write(result.Document); err != nil {
				fmt.Printf("[FAIL] %-14s %v\n", identifier, err)
				failed++
				continue
			}
		}
		status := "[OK]"
		if result.Document.TextUnavailable {
			status = "[TEXT MISSING]"
		}
		fmt.Printf("%s %-14s %s (%s, %s)\n", status, identifier, result.Document.URI,
			result.Document.IssuedDate, result.Document.IssuedMethod)
		built++
	}

	fmt.Printf("\nBuilt: %d | Expired: %d | Failed: %d\n", built, expired, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d builds failed", failed, len(identifiers))
	}
	return nil
}

func importArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-archive <archive.tar[.gz]>",
		Short: "Import act texts from a legacy download archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(application *app) error {
				importer := archive.NewImporter(application.store, application.entries,
					archive.WithLogger(application.logger))
				report, err := importer.Import(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Println(report.Format())
				return nil
			})
		},
	}
}

func stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the saved scan state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(application *app) error {
				statePath := application.settings.StatePath()
				state, err := discovery.LoadState(statePath)
				if err != nil {
					return err
				}

				next := "(after the highest stored act, or start of current year)"
				if !state.NextIdentifier.IsZero() {
					next = state.NextIdentifier.String()
				}
				fmt.Printf("State file: %s\n", statePath)
				fmt.Printf("Next SFS number: %s\n", next)
				if state.LastRunID != "" {
					fmt.Printf("Last run: %s at %s\n", state.LastRunID, state.UpdatedAt.Format("2006-01-02 15:04:05"))
				}
				fmt.Printf("Revisit queue (%d): %s\n", len(state.Revisit), joinIdentifiers(state.Revisit))
				return nil
			})
		},
	}
}

func parseIdentifiers(args []string) ([]sfs.Identifier, error) {
	identifiers := make([]sfs.Identifier, 0, len(args))
	for _, arg := range args {
		identifier, err := sfs.Parse(arg)
		if err != nil {
			return nil, err
		}
		identifiers = append(identifiers, identifier)
	}
	return identifiers, nil
}

func joinIdentifiers(identifiers []sfs.Identifier) string {
	texts := make([]string, len(identifiers))
	for index, identifier := range identifiers {
		texts[index] = identifier.String()
	}
	return strings.Join(texts, ", ")
}
