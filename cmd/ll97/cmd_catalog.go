package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the property types and years the models accept",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		catalog, err := buildCatalog(cfg.Catalog)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, "Property types:")
		for _, p := range catalog.PropertyTypes() {
			fmt.Fprintf(w, "  %s\n", p)
		}
		years := make([]string, 0, len(catalog.Years()))
		for _, y := range catalog.Years() {
			years = append(years, fmt.Sprint(y))
		}
		fmt.Fprintf(w, "Years: %s\n", strings.Join(years, ", "))
		return nil
	},
}
