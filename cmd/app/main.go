package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/dossier/internal"
	pkgconfig "github.com/starford/dossier/pkg/config"
)

var version = "dev"

func options(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func migrate(_ context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	args := cmd.Args().Slice()
	if len(args) == 0 {
		return fmt.Errorf("migrate requires a command: up, down, version, force N")
	}
	return internal.Migrate(args[0], args[1:], opts...)
}

func reindex(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	n, err := internal.Reindex(ctx, opts...)
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	fmt.Printf("refreshed %d search vectors\n", n)
	return nil
}

func importInbox(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	res, err := internal.Import(ctx, cmd.Bool("force"), opts...)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	fmt.Printf("created %d, updated %d, failed %d\n", res.Created, res.Updated, res.Failed)
	if res.Failed > 0 {
		return cli.Exit("some cards were rejected, see the .rejected reports in the inbox", 2)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "dossier",
		Usage:   "Contact and file directory with ranked search and relationship reports",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, the search-vector worker and the inbox watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdio",
				Action: serveMCP,
			},
			{
				Name:      "migrate",
				Usage:     "Apply or roll back database migrations",
				ArgsUsage: "up | down | version | force N",
				Action:    migrate,
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the search vector of every contact",
				Action: reindex,
			},
			{
				Name:  "import",
				Usage: "Import contact cards from the inbox directory once",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Re-import files whose content has not changed",
					},
				},
				Action: importInbox,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
