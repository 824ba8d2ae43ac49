// tsbars downloads historical futures bars from the TradeStation API into
// columnar parquet files, incrementally on repeat runs.
//
// Usage:
//
//	tsbars download                       # all configured symbols, incremental
//	tsbars download -s @ES -s @NQ         # specific symbols
//	tsbars download --full                # ignore stored data, refetch all
//	tsbars symbols                        # list the default symbol table
//	tsbars config init                    # write a starter config.yaml
//
// On Windows, quote symbols with the @ prefix to avoid shell interpretation.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tsbars",
	Short: "TradeStation historical bars collector",
	Long: `tsbars fetches 1-minute OHLCV history for futures symbols from the
TradeStation market-data API and stores it as parquet files. Repeated runs
are incremental: only bars newer than what is already stored are fetched.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
