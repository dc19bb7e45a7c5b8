package main

import (
	"os"

	"github.com/spf13/viper"
	"github.com/turbot/tailwriter/cmd"
)

var (
	// populated by the build
	version = "0.0.0-dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "local"
)

func main() {
	viper.SetDefault("main.version", version)
	viper.SetDefault("main.commit", commit)
	viper.SetDefault("main.date", date)
	viper.SetDefault("main.builtBy", builtBy)

	os.Exit(cmd.Execute())
}
