package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/multicare-dataset/website/internal"
	"github.com/multicare-dataset/website/internal/query"
	pkgconfig "github.com/multicare-dataset/website/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func importDataset(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	report, err := internal.Import(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if report != nil {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(os.Stdout, string(out))
	}
	return err
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

// match evaluates a query against text given as arguments or on stdin.
func match(_ context.Context, cmd *cli.Command) error {
	var marker query.Marker
	switch cmd.String("marker") {
	case "markdown":
		marker = query.MarkdownMarker
	case "html":
		marker = query.HTMLMarker
	default:
		return fmt.Errorf("unknown marker %q (want markdown or html)", cmd.String("marker"))
	}

	text := strings.Join(cmd.Args().Slice(), " ")
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}

	q := cmd.String("query")
	fmt.Fprintf(os.Stdout, "parsed: %s\n", query.Parse(q))
	fmt.Fprintf(os.Stdout, "matched: %t\n", query.Matches(text, q))
	fmt.Fprintln(os.Stdout, query.Highlight(text, q, marker))
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "casehub",
		Usage:  "Clinical case report browser with boolean free-text search over the MultiCaRe dataset",
		Action: serve,
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
				Usage:  "Start the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "import",
				Usage:  "Synchronize the SQLite store with the dataset directory and exit",
				Action: importDataset,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the case hub tools over MCP on stdin/stdout",
				Action: serveMCP,
			},
			{
				Name:      "match",
				Usage:     "Evaluate a search query against text",
				ArgsUsage: "[text...]",
				Action:    match,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Query, e.g. \"fever AND headache NOT malaria\"",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "marker",
						Usage: "Highlight style: markdown or html",
						Value: "markdown",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
