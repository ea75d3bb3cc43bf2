// Package cmd implements the command-line interface for crunchymeta.
package cmd

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/ocnaibill/crunchyroll-jellyfin/catalog"
	"github.com/ocnaibill/crunchyroll-jellyfin/fetcher"
	"github.com/invopop/jsonschema"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().IntP("season", "s", 0, "Consumer season number (0 for specials)")
	resolveCmd.Flags().IntP("episode", "e", 0, "Consumer episode number within the season")
	resolveCmd.Flags().BoolP("mapping", "m", false, "Print the full season mapping instead of resolving one episode")
	resolveCmd.Flags().Bool("json-schema", false, "Print the JSON schema of the output and exit")

	resolveCmd.SetOut(os.Stdout)
}

// resolveCmd maps consumer season/episode numbering onto provider records.
var resolveCmd = &cobra.Command{
	Use:   "resolve <series-id>",
	Short: "Resolve a consumer season and episode pair to a provider episode record",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var (
			mappingOnly = lo.Must(cmd.Flags().GetBool("mapping"))
			season      = lo.Must(cmd.Flags().GetInt("season"))
			episode     = lo.Must(cmd.Flags().GetInt("episode"))
		)

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")

		if lo.Must(cmd.Flags().GetBool("json-schema")) {
			var schema *jsonschema.Schema
			if mappingOnly {
				schema = jsonschema.Reflect(&catalog.Mapping{})
			} else {
				schema = jsonschema.Reflect(&catalog.EpisodeMatchResult{})
			}
			lo.Must0(encoder.Encode(schema))
			return
		}

		if len(args) == 0 {
			handleErr(cmd.Help())
			return
		}
		seriesID := args[0]

		orchestrator := fetcher.New()
		defer orchestrator.Close()

		if mappingOnly {
			mapping, _, err := orchestrator.SeasonMapping(cmd.Context(), seriesID)
			handleErr(err)
			lo.Must0(encoder.Encode(mapping))
			return
		}

		if !cmd.Flags().Changed("episode") {
			handleErr(errors.New("--episode is required unless --mapping is set"))
		}

		result, err := orchestrator.ResolveEpisode(cmd.Context(), seriesID, season, episode)
		handleErr(err)
		lo.Must0(encoder.Encode(result))
	},
}
