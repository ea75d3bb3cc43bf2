// Package cmd implements the command-line interface for crunchymeta.
package cmd

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/ocnaibill/crunchyroll-jellyfin/color"
	"github.com/ocnaibill/crunchyroll-jellyfin/fetcher"
	"github.com/ocnaibill/crunchyroll-jellyfin/style"
	"github.com/ocnaibill/crunchyroll-jellyfin/util"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntP("limit", "n", 10, "Maximum number of results to return")
	searchCmd.Flags().BoolP("json", "j", false, "Format the output as a JSON string")

	searchCmd.SetOut(os.Stdout)
}

// searchCmd resolves a free-text query to ranked catalog series.
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the catalog for series matching a query",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var (
			query  = strings.Join(args, " ")
			limit  = lo.Must(cmd.Flags().GetInt("limit"))
			asJson = lo.Must(cmd.Flags().GetBool("json"))
		)

		orchestrator := fetcher.New()
		defer orchestrator.Close()

		results, err := orchestrator.Search(cmd.Context(), query, limit)
		handleErr(err)

		if asJson {
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			lo.Must0(encoder.Encode(results))
			return
		}

		width, _, err := util.TerminalSize()
		if err != nil || width <= 0 {
			width = 80
		}

		titleStyle := style.New().Bold(true).Foreground(color.HiPurple).Render
		for _, series := range results {
			cmd.Printf("%s %s\n", titleStyle(series.Title), style.Faint(series.ID))
			if series.Year != 0 {
				cmd.Printf("  %s\n", style.Fg(color.Yellow)(strconv.Itoa(series.Year)))
			}
			if series.Description != "" {
				cmd.Printf("%s\n", style.Faint(indent.String(wordwrap.String(series.Description, width-2), 2)))
			}
			cmd.Println()
		}
	},
}
