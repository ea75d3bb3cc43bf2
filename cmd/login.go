// Package cmd implements the command-line interface for crunchymeta.
package cmd

import (
	"fmt"

	"github.com/ocnaibill/crunchyroll-jellyfin/color"
	"github.com/ocnaibill/crunchyroll-jellyfin/key"
	"github.com/ocnaibill/crunchyroll-jellyfin/style"
	"github.com/ocnaibill/crunchyroll-jellyfin/token"
	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.AddCommand(logoutCmd)
}

// loginCmd stores provider account credentials: the username in the config
// file, the password in the system keyring.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store provider account credentials for the password grant",
	Run: func(cmd *cobra.Command, args []string) {
		var username string
		handleErr(survey.AskOne(&survey.Input{
			Message: "Username (email):",
			Default: viper.GetString(key.AccountUsername),
		}, &username, survey.WithValidator(survey.Required)))

		var password string
		handleErr(survey.AskOne(&survey.Password{
			Message: "Password:",
		}, &password, survey.WithValidator(survey.Required)))

		viper.Set(key.AccountUsername, username)
		switch err := viper.WriteConfig(); err.(type) {
		case viper.ConfigFileNotFoundError:
			handleErr(viper.SafeWriteConfig())
		default:
			handleErr(err)
		}

		handleErr(token.SavePassword(password))

		fmt.Printf(
			"%s credentials stored for %s\n",
			style.Fg(color.Green)("✓"),
			style.Fg(color.Purple)(username),
		)
	},
}

// logoutCmd removes all stored credentials and tokens.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials and the persisted refresh token",
	Run: func(cmd *cobra.Command, args []string) {
		// Keyring entries may legitimately be absent; ignore those errors.
		_ = token.DeletePassword()
		_ = token.DeleteRefreshToken()

		viper.Set(key.AccountUsername, "")
		switch err := viper.WriteConfig(); err.(type) {
		case nil, viper.ConfigFileNotFoundError:
		default:
			handleErr(err)
		}

		fmt.Printf("%s credentials removed\n", style.Fg(color.Green)("✓"))
	},
}
