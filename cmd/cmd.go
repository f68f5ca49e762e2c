// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// configFlags locate the configuration sources every command reads.
func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
		},
		&cli.StringFlag{
			Name:  "secrets",
			Usage: "Path to a flat secret.toml with service credentials",
			Value: "secret.toml",
		},
		&cli.StringFlag{
			Name:  "env",
			Usage: "Path to a dotenv file with PTRACK_* credentials",
			Value: ".env",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (debug, info, warn, error)",
		},
	}
}

// runFlags describe the input and outputs of a run.
func runFlags() []cli.Flag {
	return append(configFlags(),
		&cli.StringFlag{
			Name:    "manual",
			Aliases: []string{"m"},
			Usage:   `Manual song list, one "Song - Artist" per line`,
		},
		&cli.StringFlag{
			Name:  "manual-file",
			Usage: `File with one "Song - Artist" per line ("-" reads stdin)`,
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"w"},
			Usage:   "Maximum songs processed concurrently (default from config)",
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum number of songs to resolve, 0 for no limit (default from config)",
		},
		&cli.StringFlag{
			Name:    "output-dir",
			Aliases: []string{"o"},
			Usage:   "Directory for the CSV files (default from config)",
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "Base name of the CSV files",
		},
		&cli.BoolFlag{
			Name:  "upload",
			Usage: "Push the results to the configured object store",
		},
		&cli.BoolFlag{
			Name:  "browser",
			Usage: "Fall back to a headless browser when the artist page cannot be resolved",
		},
		&cli.BoolFlag{
			Name:  "no-history",
			Usage: "Do not record the run in the history database",
		},
	)
}

// runCommand aggregates placement metadata for a reference or a manual list.
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Collect credits, streams and views for an artist, playlist, album or song list",
		Description: "REFERENCE is a Genius artist (URL, path or @name), or a Spotify playlist or album (URL or URI).\n" +
			"Use --manual or --manual-file instead of a reference to enrich a hand-written list.",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "reference"},
		},
		Flags: append(runFlags(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the result as JSON instead of a table",
			},
		),
		Action: r.Run,
	}
}

// tuiCommand runs with the interactive progress view.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Run with an interactive progress view",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "reference"},
		},
		Flags:  runFlags(),
		Action: r.TUI,
	}
}

// historyCommand browses recorded runs.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "history",
		Usage:  "List recorded runs",
		Flags:  append(configFlags(), historyFlags()...),
		Action: r.HistoryList,
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List recorded runs, most recent first",
				Flags:  append(configFlags(), historyFlags()...),
				Action: r.HistoryList,
			},
			{
				Name:  "show",
				Usage: "Show the simplified records of a run by ID or sequence number",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: append(configFlags(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				),
				Action: r.HistoryShow,
			},
		},
	}
}

func historyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum number of runs to list",
			Value:   20,
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml template",
				Flags:  configFlags(),
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the history database and run migrations",
				Flags:  configFlags(),
				Action: r.SetupDatabase,
			},
		},
	}
}
