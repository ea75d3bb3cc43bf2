// Package cmd implements the command-line interface for crunchymeta.
package cmd

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/ocnaibill/crunchyroll-jellyfin/color"
	"github.com/ocnaibill/crunchyroll-jellyfin/constant"
	"github.com/ocnaibill/crunchyroll-jellyfin/filesystem"
	"github.com/ocnaibill/crunchyroll-jellyfin/scrape"
	"github.com/ocnaibill/crunchyroll-jellyfin/style"
	"github.com/ocnaibill/crunchyroll-jellyfin/util"
	"github.com/ocnaibill/crunchyroll-jellyfin/where"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(extractorsCmd)
}

// extractorsCmd provides a parent command for managing page extractors.
var extractorsCmd = &cobra.Command{
	Use:   "extractors",
	Short: "Manage the built-in and custom page extractors",
}

func init() {
	extractorsCmd.AddCommand(extractorsListCmd)
	extractorsListCmd.SetOut(os.Stdout)
}

// extractorsListCmd displays every installed extractor and the active one.
var extractorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Display all installed page extractors",
	Run: func(cmd *cobra.Command, args []string) {
		headerStyle := style.New().Foreground(color.HiBlue).Bold(true).Render

		cmd.Println(headerStyle("Active:"))
		cmd.Println(scrape.Resolve().Name())

		customs, err := scrape.LoadExtractors()
		handleErr(err)

		cmd.Println()
		cmd.Println(headerStyle("Custom:"))
		if len(customs) == 0 {
			cmd.Println(style.Faint("(none installed)"))
			return
		}
		for _, ex := range customs {
			cmd.Println(ex.Name())
		}
	},
}

func init() {
	extractorsCmd.AddCommand(extractorsGenCmd)

	extractorsGenCmd.Flags().StringP("name", "n", "", "The display name of the new extractor")
	lo.Must0(extractorsGenCmd.MarkFlagRequired("name"))
}

// extractorsGenCmd scaffolds a boilerplate Lua extractor script.
var extractorsGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Scaffold a new Lua extractor script using a predefined template",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.SetOut(os.Stdout)

		var author string
		usr, err := user.Current()
		if err == nil {
			author = usr.Username
		} else {
			author = "Anonymous"
		}

		s := struct {
			Name            string
			Author          string
			ExtractSeriesFn string
		}{
			Name:            lo.Must(cmd.Flags().GetString("name")),
			Author:          author,
			ExtractSeriesFn: constant.ExtractSeriesFn,
		}

		funcMap := template.FuncMap{
			"repeat": strings.Repeat,
			"plus":   func(a, b int) int { return a + b },
			"max":    util.Max[int],
		}

		tmpl, err := template.New("extractor").Funcs(funcMap).Parse(constant.ExtractorTemplate)
		handleErr(err)

		target := filepath.Join(where.Extractors(), util.SanitizeFilename(s.Name)+".lua")
		f, err := filesystem.API().Create(target)
		handleErr(err)

		defer util.Ignore(f.Close)

		err = tmpl.Execute(f, s)
		handleErr(err)

		fmt.Println(target)
	},
}
