package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/wolkabout/wolkconnect-go/cmd/wolk-agent/buffer"
	"github.com/wolkabout/wolkconnect-go/cmd/wolk-agent/console"
	"github.com/wolkabout/wolkconnect-go/cmd/wolk-agent/run"
	"github.com/wolkabout/wolkconnect-go/cmd/wolk-agent/subcmd"
	"github.com/wolkabout/wolkconnect-go/internal/config"
	"github.com/wolkabout/wolkconnect-go/log2"
)

var log = log2.NewStderr(log2.LDebug)

var modules = []subcmd.Mod{
	run.Mod,
	console.Mod,
	buffer.Mod,
}

func main() {
	flagset := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flagConfig := flagset.String("config", "wolk.hcl", "agent config file")
	flagset.Usage = func() {
		fmt.Fprintf(flagset.Output(), "usage: %s [-config=wolk.hcl] command [args]\n", os.Args[0])
		flagset.PrintDefaults()
		fmt.Fprint(flagset.Output(), subcmd.Usage(modules))
	}
	_ = flagset.Parse(os.Args[1:])

	if subcmd.SdNotify(log, "start") {
		// under systemd assume journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	mod, err := subcmd.Parse(flagset.Arg(0), modules)
	if err != nil {
		flagset.Usage()
		log.Fatal(err)
	}

	fs, err := config.NewOsFullReader(".")
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	cfg := config.MustRead(log, fs, *flagConfig)
	if !cfg.LogDebug {
		log.SetLevel(log2.LInfo)
	}
	// manifest path is relative to config file
	if cfg.Manifest != "" {
		cfg.Manifest = fs.Normalize(cfg.Manifest)
	}
	log.Debugf("config=%s", cfg.String())

	ctx := log2.ContextWithLogger(context.Background(), log)
	if err := mod.Main(ctx, cfg, flagset.Args()[1:]); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
