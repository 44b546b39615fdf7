package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "jobrelay",
		Usage: "collect job postings, summarize them in Arabic and publish to Telegram",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "config file (default: <data-dir>/config.yml, bootstrapped from config/config.yml)",
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "env file",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "directory for the database, lock file and user config",
				Value:   "data",
				Sources: cli.EnvVars("JOBRELAY_DATA_DIR"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the pipeline once",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "log messages instead of sending them; dedup state is left untouched",
					},
				},
				Action: RunAction,
			},
			{
				Name:   "serve",
				Usage:  "run on the configured schedule and expose the operator API",
				Action: ServeAction,
			},
			{
				Name:  "dedup",
				Usage: "inspect and edit the dedup store",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "list dedup keys",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "prefix", Usage: "key prefix (posted: or fp:)"},
						},
						Action: DedupListAction,
					},
					{
						Name:  "forget",
						Usage: "drop a posted identity or a title/company fingerprint",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "identity"},
							&cli.StringFlag{Name: "title"},
							&cli.StringFlag{Name: "company"},
						},
						Action: DedupForgetAction,
					},
					{
						Name:   "purge",
						Usage:  "delete expired dedup entries (sqlite backend)",
						Action: DedupPurgeAction,
					},
				},
			},
			{
				Name:  "jobs",
				Usage: "job records",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "list recent job records",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "status"},
							&cli.StringFlag{Name: "source"},
							&cli.IntFlag{Name: "limit", Value: 50},
						},
						Action: JobsListAction,
					},
					{
						Name:  "show",
						Usage: "show one job record",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "identity", Required: true},
						},
						Action: JobsShowAction,
					},
				},
			},
			{
				Name:  "sources",
				Usage: "operator switches for configured sources",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "list configured sources and their switch",
						Action: SourcesListAction,
					},
					{
						Name:      "enable",
						ArgsUsage: "<name>",
						Action:    SourcesToggleAction(true),
					},
					{
						Name:      "disable",
						ArgsUsage: "<name>",
						Action:    SourcesToggleAction(false),
					},
				},
			},
			{
				Name:   "pause",
				Usage:  "pause publishing; runs complete without fetching",
				Action: PauseAction(true),
			},
			{
				Name:   "resume",
				Usage:  "resume publishing",
				Action: PauseAction(false),
			},
			{
				Name:  "config",
				Usage: "configuration helpers",
				Commands: []*cli.Command{
					{
						Name:   "validate",
						Usage:  "validate the resolved config",
						Action: ConfigValidateAction,
					},
					{
						Name:   "fmt",
						Usage:  "rewrite the config file normalized, keeping a .bak copy",
						Action: ConfigFmtAction,
					},
				},
			},
			{
				Name:  "secrets",
				Usage: "store credentials in the OS keychain",
				Commands: []*cli.Command{
					{
						Name:      "set",
						ArgsUsage: "<telegram|openai> <value>",
						Action:    SecretsSetAction,
					},
					{
						Name:      "delete",
						ArgsUsage: "<telegram|openai>",
						Action:    SecretsDeleteAction,
					},
				},
			},
		},
	}
}
