// Package cmd implements the command-line interface for crunchymeta.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/ocnaibill/crunchyroll-jellyfin/color"
	"github.com/ocnaibill/crunchyroll-jellyfin/constant"
	"github.com/ocnaibill/crunchyroll-jellyfin/key"
	"github.com/ocnaibill/crunchyroll-jellyfin/log"
	"github.com/ocnaibill/crunchyroll-jellyfin/style"
	cc "github.com/ivanpirog/coloredcobra"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print the application version")

	rootCmd.PersistentFlags().StringP("locale", "L", "", "Override the preferred provider locale (e.g. en-US, de-DE)")
	lo.Must0(viper.BindPFlag(key.LocalePreferred, rootCmd.PersistentFlags().Lookup("locale")))
}

// rootCmd defines the entry point for the crunchymeta application.
var rootCmd = &cobra.Command{
	Use:   constant.CrunchyMeta,
	Short: "A metadata resolver for the provider's catalog with tiered fetch escalation",
	Long: style.New().Italic(true).Foreground(color.HiRed).
		Render("    - Resolves series, season and episode metadata through direct, proxied and rendered-page tiers"),
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("version") {
			versionCmd.Run(versionCmd, args)
			return
		}

		handleErr(cmd.Help())
	},
}

// Execute initializes child command routing and processes the CLI entry point.
func Execute() {
	if viper.GetBool(key.CliColored) {
		cc.Init(&cc.Config{
			RootCmd:       rootCmd,
			Headings:      cc.HiCyan + cc.Bold + cc.Underline,
			Commands:      cc.HiYellow + cc.Bold,
			Example:       cc.Italic,
			ExecName:      cc.Bold,
			Flags:         cc.Bold,
			FlagsDataType: cc.Italic + cc.HiBlue,
		})
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func handleErr(err error) {
	if err != nil {
		log.Error(err)
		_, _ = fmt.Fprintf(os.Stderr, "%s %s\n", style.Fg(color.Red)("✗"), strings.Trim(err.Error(), " \n"))
		os.Exit(1)
	}
}
