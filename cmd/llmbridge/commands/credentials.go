package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/llmbridge/internal/app"
	"github.com/florianilch/llmbridge/internal/bridge"
)

func credentialsCommand() *cli.Command {
	return &cli.Command{
		Name:  "credentials",
		Usage: "Manage vendor credentials",
		Commands: []*cli.Command{
			credentialsAddCommand(),
			credentialsListCommand(),
			credentialsValidateCommand(),
		},
	}
}

func credentialsAddCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Stores a vendor credential; the secret is read from stdin",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "unique credential name", Required: true},
			&cli.StringFlag{Name: "provider", Usage: "provider id (see 'llmbridge providers')", Required: true},
			&cli.StringFlag{Name: "base-url", Usage: "override the vendor base URL"},
			&cli.StringSliceFlag{Name: "model", Usage: "restrict validation and listing to this model (repeatable)"},
			&cli.BoolFlag{Name: "validate", Usage: "validate right after storing"},
		},
		Action: credentialsAddAction,
	}
}

func credentialsAddAction(ctx context.Context, cmd *cli.Command) error {
	secretValue, err := readSecureInput(ctx, "Enter secret: ")
	if err != nil {
		return err
	}
	if secretValue == "" {
		return errors.New("secret cannot be empty")
	}

	return withApp(ctx, cmd, func(a *app.App) error {
		cred, err := a.Bridge().AddCredential(ctx, bridge.NewCredential{
			Name:         cmd.String("name"),
			Provider:     cmd.String("provider"),
			Secret:       secretValue,
			BaseURL:      cmd.String("base-url"),
			CustomModels: cmd.StringSlice("model"),
		})
		if err != nil {
			return fmt.Errorf("failed to add credential: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Credential %q stored with id %s\n", cred.Name, cred.ID)

		if !cmd.Bool("validate") {
			return printJSON(os.Stdout, map[string]string{"id": cred.ID})
		}
		result, err := a.Bridge().ValidateCredential(ctx, cred.ID)
		if err != nil {
			return fmt.Errorf("failed to validate credential: %w", err)
		}
		return printJSON(os.Stdout, result)
	})
}

func credentialsListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Lists stored credentials with masked secrets",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(a *app.App) error {
				views, err := a.Bridge().ListCredentials(ctx)
				if err != nil {
					return fmt.Errorf("failed to list credentials: %w", err)
				}
				return printJSON(os.Stdout, views)
			})
		},
	}
}

func credentialsValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Probes a credential against its vendor and records the outcome",
		ArgsUsage: "<credential-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return errors.New("credential id is required")
			}
			return withApp(ctx, cmd, func(a *app.App) error {
				result, err := a.Bridge().ValidateCredential(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to validate credential: %w", err)
				}
				if err := printJSON(os.Stdout, result); err != nil {
					return err
				}
				if !result.Valid {
					return fmt.Errorf("credential %s is invalid: %s", id, result.Message)
				}
				return nil
			})
		},
	}
}
