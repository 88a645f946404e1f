package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/llmbridge/internal/app"
	"github.com/florianilch/llmbridge/internal/bridge"
	"github.com/florianilch/llmbridge/internal/store"
)

func keysCommand() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "Manage proxy keys",
		Commands: []*cli.Command{
			keysIssueCommand(),
			keysListCommand(),
		},
	}
}

func keysIssueCommand() *cli.Command {
	return &cli.Command{
		Name:  "issue",
		Usage: "Issues a proxy key bound to one credential and model",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "credential", Usage: "credential id", Required: true},
			&cli.StringFlag{Name: "model", Usage: "vendor model every request is sent to", Required: true},
			&cli.StringFlag{Name: "format", Usage: "caller format (openai|anthropic)", Value: string(store.FormatOpenAI)},
			&cli.IntFlag{Name: "rate-limit", Usage: "requests per minute, 0 for unlimited"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(a *app.App) error {
				cfg, err := a.Bridge().IssueProxyKey(ctx, bridge.IssueRequest{
					CredentialID: cmd.String("credential"),
					ModelName:    cmd.String("model"),
					TargetFormat: store.Format(cmd.String("format")),
					RateLimit:    cmd.Int("rate-limit"),
				})
				if err != nil {
					return fmt.Errorf("failed to issue proxy key: %w", err)
				}
				fmt.Fprintln(os.Stderr, "Store this key now; it is shown only once.")
				return printJSON(os.Stdout, map[string]string{
					"id":        cfg.ID,
					"proxy_key": cfg.ProxyKey,
					"model":     cfg.ModelName,
					"format":    string(cfg.TargetFormat),
				})
			})
		},
	}
}

func keysListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Lists proxy keys, masked",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(a *app.App) error {
				views, err := a.Bridge().ListProxyKeys(ctx)
				if err != nil {
					return fmt.Errorf("failed to list proxy keys: %w", err)
				}
				return printJSON(os.Stdout, views)
			})
		},
	}
}
