package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/nvr-ai/go-waste/history"
	"github.com/nvr-ai/go-waste/waste"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show logged classifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cfg.History.Enabled {
				return fmt.Errorf("history is disabled (set history.enabled)")
			}

			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			counts, err := store.Counts(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				for _, e := range entries {
					if err := enc.Encode(e); err != nil {
						return err
					}
				}
				return nil
			}
			writeHistory(out, entries, counts)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultLimit, "number of entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per entry")
	return cmd
}

func writeHistory(w io.Writer, entries []history.Classification, counts map[waste.Category]int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSOURCE\tSUBJECT\tRESULT\tCONFIDENCE")
	for _, e := range entries {
		result := emptyColor.Sprint("no detection")
		switch {
		case e.Error != nil:
			result = failedColor.Sprintf("error: %s", *e.Error)
		case e.Category != nil && e.Recyclable != nil && *e.Recyclable:
			result = recyclableColor.Sprint(*e.Category)
		case e.Category != nil:
			result = residualColor.Sprint(*e.Category)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\n",
			e.Time.Local().Format("2006-01-02 15:04:05"), e.Source, e.Subject, result, e.Confidence)
	}
	_ = tw.Flush()

	if len(counts) == 0 {
		return
	}
	categories := make([]waste.Category, 0, len(counts))
	for c := range counts {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	fmt.Fprintln(w)
	for _, c := range categories {
		fmt.Fprintf(w, "%-20s %d\n", c, counts[c])
	}
}
