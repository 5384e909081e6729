// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// synthCommand handles playlist synthesis
func synthCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "synth",
		Aliases: []string{"s"},
		Usage:   "Build playlists from a seed",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Fetch suggestions for a seed, match them against the library, download the rest and fill a playlist",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "seed"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "mode",
						Aliases: []string{"m"},
						Usage:   "Suggestion mode (similar, discover, deep-cuts; ordered or shuffle for spotify)",
					},
					&cli.IntFlag{
						Name:    "count",
						Aliases: []string{"n"},
						Usage:   "Number of suggestions to request",
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Playlist name (default: [pipeline] playlist_name template)",
					},
					&cli.BoolFlag{
						Name:  "tui",
						Usage: "Show live progress in an interactive view",
					},
					&cli.StringFlag{
						Name:  "report",
						Usage: "Write a run report to this path",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Report format: json, csv, markdown, txt",
						Value:   "txt",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output the result as JSON",
					},
				},
				Action: r.SynthRun,
			},
			{
				Name:      "batch",
				Usage:     "Synthesize one playlist per seed and write a report for each",
				ArgsUsage: "[seed...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file",
						Usage: "Read seeds from a file, one per line",
					},
					&cli.StringFlag{
						Name:    "mode",
						Aliases: []string{"m"},
						Usage:   "Suggestion mode for every seed",
					},
					&cli.IntFlag{
						Name:    "count",
						Aliases: []string{"n"},
						Usage:   "Number of suggestions per seed",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Report format: json, csv, markdown, txt",
						Value:   "json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Report directory (default: curate_batch_{timestamp})",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Runs in flight at once",
						Value: 2,
					},
					&cli.FloatFlag{
						Name:  "rate",
						Usage: "Runs started per second",
						Value: 1,
					},
				},
				Action: r.SynthBatch,
			},
		},
	}
}

// libraryCommand handles direct media server operations
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "library",
		Aliases: []string{"lib"},
		Usage:   "Media server operations",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Sign in and show the session (prompts for the password when none is configured)",
				Action: r.LibraryLogin,
			},
			{
				Name:  "search",
				Usage: "Search the library the way the pipeline does and show the best match",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "title"},
					&cli.StringArg{Name: "artist"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.LibrarySearch,
			},
			{
				Name:   "collections",
				Usage:  "List top-level libraries",
				Action: r.LibraryCollections,
			},
			{
				Name:  "scan",
				Usage: "Re-index the music library and wait for it to finish",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "collection",
						Usage: "Collection id (default: the configured or first music collection)",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Maximum wait",
					},
					&cli.BoolFlag{
						Name:  "no-wait",
						Usage: "Return as soon as the scan is triggered",
					},
				},
				Action: r.LibraryScan,
			},
			{
				Name:  "tasks",
				Usage: "List the server's scheduled tasks",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "active",
						Usage: "Only show running library scans",
					},
				},
				Action: r.LibraryTasks,
			},
			{
				Name:  "playlists",
				Usage: "List playlists, or the tracks of one",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.LibraryPlaylists,
			},
			{
				Name:  "delete-playlist",
				Usage: "Delete a playlist",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.LibraryDeletePlaylist,
			},
		},
	}
}

// historyCommand handles saved runs
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Browse saved synthesis runs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent runs",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only runs with this status (completed, failed)",
					},
					&cli.StringFlag{
						Name:  "seed",
						Usage: "Only runs for this exact seed",
					},
					&cli.StringFlag{
						Name:  "match",
						Usage: "Fuzzy filter on seed and playlist name",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.HistoryList,
			},
			{
				Name:  "show",
				Usage: "Show one run with its per-song outcomes",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: json, csv, markdown, txt",
						Value:   "txt",
					},
				},
				Action: r.HistoryShow,
			},
			{
				Name:  "delete",
				Usage: "Remove a run from the history",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.HistoryDelete,
			},
		},
	}
}

// serveCommand starts the HTTP entry point.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the synthesis API, run history, health and metrics over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: [server] host:port)",
			},
		},
		Action: r.Serve,
	}
}

// setupCommand handles setup operations for configuration and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write a config.toml from the built-in template",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:   "check",
				Usage:  "Validate the configuration and probe every collaborator",
				Action: r.SetupCheck,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for browsing saved runs.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Browse saved runs in an interactive view",
		Action:  r.TUI,
	}
}
