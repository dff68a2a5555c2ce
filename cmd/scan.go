package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/pipeline"
)

func newScanCmd() *cobra.Command {
	var candidatesOut string
	cmd := &cobra.Command{
		Use:   "scan JOB LAUNCH",
		Short: "Scans one crawl launch and publishes the documents it found",
		Long: `Scans every crawl log shard of the given launch, keeps documents found on
watched targets, and publishes each one that is not already recorded. The run
result is printed as JSON. An incomplete run exits with status 2 so it can be
retried.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			var opts []pipeline.RunOption
			if candidatesOut != "" {
				f, err := os.Create(candidatesOut)
				if err != nil {
					return fmt.Errorf("create candidates file: %w", err)
				}
				defer func() {
					if cerr := f.Close(); cerr != nil {
						appInstance.Logger().Warn("close candidates file failed", zap.Error(cerr))
					}
				}()
				opts = append(opts, pipeline.WithCandidates(docs.NewCandidateWriter(f)))
			}
			res, err := appInstance.Orchestrator().Run(cmd.Context(), args[0], args[1], opts...)
			if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
				return perr
			}
			if err != nil {
				return fmt.Errorf("scan %s/%s: %w", args[0], args[1], err)
			}
			return res.Err()
		},
	}
	cmd.Flags().StringVar(&candidatesOut, "candidates-out", "", "also write matched candidates as JSON lines to this file")
	return cmd
}

func newScanAllCmd() *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "scan-all",
		Short: "Scans every launch below the crawl log root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("root") {
				root = appInstance.Config().Storage.Root
			}
			results, err := appInstance.Orchestrator().RunAll(cmd.Context(), root)
			if perr := printJSON(cmd.OutOrStdout(), results); perr != nil {
				return perr
			}
			if err != nil {
				return fmt.Errorf("scan all: %w", err)
			}
			var errs []error
			for _, res := range results {
				errs = append(errs, res.Err())
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "crawl log root (default storage.root)")
	return cmd
}

func newPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish FILE",
		Short: "Publishes candidates from a JSON lines file written by scan",
		Long: `Replays candidates previously written with scan --candidates-out through
enrichment and publication. Use - to read from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open candidates file: %w", err)
				}
				defer func() { _ = f.Close() }()
				r = f
			}
			res, err := appInstance.Orchestrator().Replay(cmd.Context(), r)
			if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
				return perr
			}
			if err != nil {
				return fmt.Errorf("publish %s: %w", args[0], err)
			}
			return res.Err()
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
