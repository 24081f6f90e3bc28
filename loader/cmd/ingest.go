package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ragbridge/loader/extract"
	"ragbridge/pipeline"
	"ragbridge/types"
)

func NewIngestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Ingest files into the collection",
		Long:  `Extract, chunk, embed and store every file given. Files are not moved.`,
		Args:  cobra.MinimumNArgs(1),
		RunE:  makeIngestRunner(a),
	}
	cmd.Flags().Bool("no-progress", false, "Disable the progress bar (off anyway when stderr is not a terminal)")
	cmd.Flags().Bool("json", false, "Print one ingestion result per file as JSON")
	return cmd
}

func makeIngestRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		noProgress, _ := cmd.Flags().GetBool("no-progress")
		asJSON, _ := cmd.Flags().GetBool("json")
		showProgress := !noProgress && !asJSON && term.IsTerminal(int(os.Stderr.Fd()))

		p, err := a.pipeline(cmd.Context())
		if err != nil {
			return err
		}

		var failed []error
		for _, path := range args {
			res, err := ingestFile(cmd, p, a, path, showProgress)
			if err != nil {
				failed = append(failed, fmt.Errorf("%s: %w", path, err))
			}
			if res == nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
				continue
			}
			if asJSON {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(res); err != nil {
					return err
				}
				continue
			}
			printResult(cmd.OutOrStdout(), path, res)
		}
		return errors.Join(failed...)
	}
}

func ingestFile(cmd *cobra.Command, p *pipeline.Pipeline, a *app, path string, showProgress bool) (*types.IngestResult, error) {
	docs, err := extract.FromFile(path, a.margins())
	if err != nil {
		return nil, err
	}

	var opts []pipeline.IngestOption
	if showProgress {
		var bar *progressbar.ProgressBar
		opts = append(opts, pipeline.WithProgress(func(done, total int) {
			if bar == nil {
				bar = newBar(cmd.ErrOrStderr(), total, filepath.Base(path))
			}
			_ = bar.Set(done)
		}))
		defer func() {
			if bar != nil {
				_ = bar.Finish()
			}
		}()
	}
	return p.IngestDocuments(cmd.Context(), a.cfg.Loader.Collection, docs, opts...)
}

func newBar(w io.Writer, total int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func printResult(w io.Writer, path string, res *types.IngestResult) {
	if res.Success {
		fmt.Fprintf(w, "%s: %d chunks stored in %s (%s)\n", path, res.Uploaded, res.Collection, res.Took.Round(time.Millisecond))
		return
	}
	fmt.Fprintf(w, "%s: failed at chunk %d after %d embedded, %d stored: %s\n",
		path, res.FailedIndex, res.Embedded, res.Uploaded, res.Message)
}
