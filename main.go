// Package main is the entry point for the crunchymeta application.
package main

import (
	"github.com/ocnaibill/crunchyroll-jellyfin/cmd"
	"github.com/ocnaibill/crunchyroll-jellyfin/config"
	"github.com/ocnaibill/crunchyroll-jellyfin/log"
	"github.com/samber/lo"
)

func main() {
	lo.Must0(config.Setup())
	lo.Must0(log.Setup())

	cmd.Execute()
}
