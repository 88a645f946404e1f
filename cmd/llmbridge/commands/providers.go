package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/llmbridge/internal/provider/factory"
)

func providersCommand() *cli.Command {
	return &cli.Command{
		Name:  "providers",
		Usage: "Lists supported provider ids",
		Action: func(_ context.Context, cmd *cli.Command) error {
			for _, id := range factory.New().SupportedProviders() {
				fmt.Fprintln(cmd.Root().Writer, id)
			}
			return nil
		},
	}
}
