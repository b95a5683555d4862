package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/fatih/color"
	"github.com/nvr-ai/go-waste/classifier"
	"github.com/nvr-ai/go-waste/history"
	"github.com/nvr-ai/go-waste/util"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

var (
	recyclableColor = color.New(color.FgGreen, color.Bold)
	residualColor   = color.New(color.FgYellow, color.Bold)
	failedColor     = color.New(color.FgRed)
	emptyColor      = color.New(color.Faint)
)

type fileResult struct {
	Path string `json:"path"`
	classifier.Result
}

func classifyCmd() *cobra.Command {
	var (
		jobs      int
		recursive bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "classify <file|dir>...",
		Short: "Classify local image files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := util.CollectImagePaths(args, recursive)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no image files found")
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if jobs <= 0 {
				jobs = runtime.GOMAXPROCS(0)
			}

			var progress io.Writer = io.Discard
			if term.IsTerminal(int(os.Stderr.Fd())) {
				progress = os.Stderr
			}
			bar := progressbar.NewOptions(len(paths),
				progressbar.OptionSetWriter(progress),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("[cyan][bold]Classifying images...[reset]"),
				progressbar.OptionClearOnFinish(),
			)

			results := make([]fileResult, len(paths))
			g, gctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(min(jobs, len(paths)))

			for i, path := range paths {
				g.Go(func() error {
					if err := gctx.Err(); err != nil {
						return err
					}

					f, err := util.ReadImageFile(path)
					if err != nil {
						results[i] = fileResult{Path: path, Result: failedResult(err)}
					} else {
						results[i] = fileResult{Path: path, Result: a.engine.ClassifyBytes(gctx, f.Data)}
						entry := history.FromResult(history.SourceCLI, path, a.engine.Mode(), results[i].Result)
						if err := a.history.RecordClassification(gctx, entry); err != nil {
							slog.Warn("recording classification failed", "path", path, "error", err)
						}
					}

					if err := bar.Add(1); err != nil {
						slog.Debug("progress bar update failed", "error", err)
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			_ = bar.Finish()

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, results)
			}
			writeTable(out, results)
			return nil
		},
	}

	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "concurrent classifications (default: GOMAXPROCS)")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "descend into subdirectories")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per image")
	return cmd
}

func failedResult(err error) classifier.Result {
	msg := err.Error()
	return classifier.Result{Error: &msg, Err: err}
}

func writeJSON(w io.Writer, results []fileResult) error {
	enc := json.NewEncoder(w)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func writeTable(w io.Writer, results []fileResult) {
	var classified, empty, failed int
	for _, r := range results {
		switch {
		case r.Error != nil:
			failed++
			fmt.Fprintf(w, "%s  %s\n", r.Path, failedColor.Sprintf("error: %s", *r.Error))
		case r.Category == nil:
			empty++
			fmt.Fprintf(w, "%s  %s\n", r.Path, emptyColor.Sprint("no detection"))
		default:
			classified++
			c := residualColor
			label := "not recyclable"
			if *r.Recyclable {
				c = recyclableColor
				label = "recyclable"
			}
			fmt.Fprintf(w, "%s  %s  %.2f  %s\n", r.Path, c.Sprint(*r.Category), r.Confidence, label)
		}
	}
	fmt.Fprintf(w, "\n%d classified, %d without detection, %d failed\n", classified, empty, failed)
}
