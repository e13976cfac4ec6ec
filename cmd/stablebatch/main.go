package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stablebatch/config"
	"stablebatch/internal/mediator"

	"github.com/TypeTerrors/gonfig"
	"github.com/charmbracelet/log"
)

const usage = `usage: stablebatch [-config path] <command>

commands:
  run <options.yml>  expand an option set and dispatch every combo
  fetch              poll pending jobs and collect the finished ones
  sync               download missing images of completed jobs
  serve              start the control API
`

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to config.yaml")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := gonfig.Load[config.Config](
		gonfig.WithConfigFile(*configPath),
		gonfig.WithDotenv(".env"), // ignored if missing
		gonfig.WithStrict(),       // fail if ${VAR} has no value/default
	)
	if err != nil {
		log.Fatal("could not load config", "path", *configPath, "err", err)
	}
	cfg = cfg.Defaults()

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn("unknown log level, using info", "level", cfg.Log.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	app, err := mediator.NewApp(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, app, args); err != nil {
		log.Error("command failed", "command", args[0], "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, app *mediator.App, args []string) error {
	switch args[0] {
	case "run":
		if len(args) < 2 {
			return fmt.Errorf("run: missing option set path")
		}
		summary, err := app.Run(ctx, args[1])
		log.Info("batch summary",
			"run", summary.RunID,
			"combos", summary.Combos,
			"success", summary.Success,
			"processing", summary.Processing,
			"failed", summary.Failed,
			"unknown", summary.Unknown,
			"undecoded", summary.Undecoded,
		)
		return err

	case "fetch":
		summary, err := app.Fetch(ctx)
		if err != nil {
			return err
		}
		log.Info("fetch summary", "completed", summary.Completed, "remaining", summary.Remaining, "dropped", summary.Dropped)
		return nil

	case "sync":
		summary, err := app.Sync(ctx)
		if err != nil {
			return err
		}
		log.Info("sync summary", "jobs", summary.Jobs, "downloaded", summary.Downloaded, "skipped", summary.Skipped, "failed", summary.Failed)
		return nil

	case "serve":
		return app.Serve(ctx)

	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}
