package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/nvr-ai/go-waste/waste"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// displayName turns "e-waste-useful" into "E-Waste Useful".
func displayName(c waste.Category) string {
	s := []byte(string(c))
	// The first hyphen of an "e-" prefix stays; the others separate words.
	for i := range s {
		if s[i] == '-' && !(i == 1 && s[0] == 'e') {
			s[i] = ' '
		}
	}
	return cases.Title(language.English).String(string(s))
}

func categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the configured waste categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tax, err := cfg.Taxonomy.Build()
			if err != nil {
				return err
			}
			writeCategories(cmd.OutOrStdout(), tax)
			return nil
		},
	}
}

func writeCategories(w io.Writer, tax *waste.Taxonomy) {
	bold := color.New(color.Bold)
	fmt.Fprintf(w, "taxonomy %s\n\n", bold.Sprint(tax.Version()))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tNAME\tRECYCLABLE\t")
	for _, c := range tax.Categories() {
		note := ""
		if c == tax.Fallback() {
			note = "fallback"
		}
		recyclable := "no"
		if tax.Recyclable(c) {
			recyclable = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c, displayName(c), recyclable, note)
	}
	_ = tw.Flush()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wastebin %s\n", color.New(color.FgGreen, color.Bold).Sprint(version))
		},
	}
}
