// ll97 predicts whether a NYC building will be fined under Local Law 97 and,
// if so, whether the fine will be paid.
//
// Usage:
//
//	ll97 serve   [--config=config.yaml]
//	ll97 predict --property-type=Office --year=2022 --energy-star=75 --site-eui=150 --ghg=500 [--json]
//	ll97 catalog
//	ll97 inspect <model-file> [--type=random_forest]
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
