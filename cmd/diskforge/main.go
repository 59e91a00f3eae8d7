package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
)

var version = "dev"

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("diskforge"),
		kong.Description("Build bootable disk images from bootc container images."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	if err := ctx.Run(&cli); err != nil {
		if !errors.Is(err, errReported) {
			slog.Error("Command failed", "error", err)
		}
		os.Exit(1)
	}
}
