// Inspect or clear persisted offline buffers.
package buffer

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/juju/errors"
	"github.com/wolkabout/wolkconnect-go/cmd/wolk-agent/subcmd"
	"github.com/wolkabout/wolkconnect-go/internal/buffer"
	"github.com/wolkabout/wolkconnect-go/internal/config"
	"github.com/wolkabout/wolkconnect-go/internal/types"
	"github.com/wolkabout/wolkconnect-go/log2"
)

const modName = "buffer"

const (
	kindReadings = "readings"
	kindAlarms   = "alarms"
)

var Mod = subcmd.Mod{Name: modName, Usage: "print persisted buffers [-dir=] [-kind=readings|alarms] [-clear]", Main: Main}

func Main(ctx context.Context, cfg *config.Config, args []string) error {
	log := log2.ContextValueLogger(ctx)
	flagset := flag.NewFlagSet(modName, flag.ContinueOnError)
	flagDir := flagset.String("dir", cfg.Buffer.PersistRoot, "persist root, default from config buffer.persist_root")
	flagKind := flagset.String("kind", "", "readings|alarms, empty = both")
	flagClear := flagset.Bool("clear", false, "remove all items after print")
	if err := flagset.Parse(args); err != nil {
		return err
	}
	if *flagDir == "" {
		return errors.NotValidf("buffer dir empty, set -dir or buffer.persist_root")
	}

	kinds := []string{kindReadings, kindAlarms}
	if *flagKind != "" {
		kinds = []string{*flagKind}
	}
	for _, kind := range kinds {
		if err := Dump(log, os.Stdout, *flagDir, kind, *flagClear); err != nil {
			return err
		}
	}
	return nil
}

func Dump(log *log2.Log, w io.Writer, dir, kind string, clear bool) error {
	switch kind {
	case kindReadings:
		return dump(log, w, dir, kind, buffer.New[*types.Reading](0, false), clear)
	case kindAlarms:
		return dump(log, w, dir, kind, buffer.New[*types.Alarm](0, false), clear)
	}
	return errors.NotValidf("buffer kind=%q", kind)
}

type stringer interface{ String() string }

func dump[T interface {
	buffer.Item[T]
	stringer
}](log *log2.Log, w io.Writer, dir, kind string, b *buffer.Buffer[T], clear bool) error {
	var p buffer.Persist
	if err := p.Init(kind, b, dir, true, log); err != nil {
		return err
	}
	if err := p.Load(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s\n", kind, b.String())
	for _, item := range b.Snapshot() {
		fmt.Fprintf(w, "  %s\n", item.String())
	}
	if clear {
		b.Clear()
		return p.Store()
	}
	return nil
}
