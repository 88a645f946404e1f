package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/florianilch/llmbridge/internal/app"
)

// flagKeys maps CLI flags onto config keys. Only flags the user set
// explicitly override file and environment values.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"addr":       "server.addr",
}

func loadConfig(path string, cmd *cli.Command, environ func() []string) (*app.Config, error) {
	overrides := map[string]any{}
	for flag, key := range flagKeys {
		if cmd.IsSet(flag) {
			overrides[key] = cmd.String(flag)
		}
	}
	return app.LoadConfig(path, overrides, environ)
}
