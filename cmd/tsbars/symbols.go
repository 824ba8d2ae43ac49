package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tsquant/go-bars-collector/internal/models"
)

var symbolsCategory string

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "List the default futures symbol table",
	RunE:  runSymbols,
}

func init() {
	symbolsCmd.Flags().StringVar(&symbolsCategory, "category", "",
		"limit output to one category (e.g. index, energy, metals)")
	rootCmd.AddCommand(symbolsCmd)
}

func runSymbols(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if symbolsCategory != "" {
		symbols, err := models.SymbolsByCategory(symbolsCategory)
		if err != nil {
			return err
		}
		for _, s := range symbols {
			fmt.Fprintln(out, s)
		}
		return nil
	}

	for _, category := range models.Categories() {
		symbols, _ := models.SymbolsByCategory(category)
		fmt.Fprintf(out, "%s:\n", category)
		for _, s := range symbols {
			fmt.Fprintf(out, "  %s\n", s)
		}
	}
	return nil
}
