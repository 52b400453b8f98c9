package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/stone-age-io/snow-inventory/internal/app"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	flags := pflag.NewFlagSet("snow-inventory", pflag.ContinueOnError)
	list := flags.Bool("list", false, "print the whole inventory (default)")
	host := flags.String("host", "", "print the variables of a single host")
	refresh := flags.Bool("refresh-cache", false, "ignore the cache and query ServiceNow")
	configPath := flags.String("config", "", "path to a YAML config file (SNOW_* variables override it)")
	version := flags.Bool("version", false, "print the version and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if *version {
		fmt.Println(Version)
		return
	}
	if *list && *host != "" {
		fmt.Fprintln(os.Stderr, "ERROR: --list and --host are mutually exclusive")
		os.Exit(2)
	}

	opts := app.Options{
		ConfigPath:   *configPath,
		Host:         *host,
		RefreshCache: *refresh,
	}
	if err := app.Run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
