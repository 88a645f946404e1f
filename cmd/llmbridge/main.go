package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/florianilch/llmbridge/cmd/llmbridge/commands"
)

// Set via -ldflags by release builds.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info, _ := debug.ReadBuildInfo()
	v, c := buildVersion(version, commit, info)

	if err := commands.Execute(ctx, os.Args, v, c); err != nil {
		slog.ErrorContext(ctx, "llmbridge failed", "error", err)
		os.Exit(1)
	}
}

// buildVersion fills unset ldflags values from the module build info that
// `go install` and plain `go build` embed.
func buildVersion(version, commit string, info *debug.BuildInfo) (string, string) {
	if info == nil {
		return version, commit
	}
	if version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	if commit == "none" {
		for _, s := range info.Settings {
			if s.Key != "vcs.revision" || s.Value == "" {
				continue
			}
			commit = s.Value[:min(len(s.Value), 12)]
		}
	}
	return version, commit
}
