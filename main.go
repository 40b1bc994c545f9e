package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"kiln/internal/cmd"
	"kiln/internal/config"
	"kiln/internal/version"
)

func main() {
	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var cli cmd.CLI
	cli.SetSettings(settings)
	ctx := kong.Parse(&cli,
		kong.Name("kiln"),
		kong.Description(version.Tagline),
		kong.UsageOnError(),
		kong.Bind(&cli),
		kong.Vars{"version": version.Info()},
	)
	defer cli.Close()

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
