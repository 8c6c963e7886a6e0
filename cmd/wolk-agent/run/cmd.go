// Main mode of operation: connect, publish sensor readings, execute commands.
package run

import (
	"context"
	"flag"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wolkabout/wolkconnect-go/cmd/wolk-agent/subcmd"
	"github.com/wolkabout/wolkconnect-go/helpers"
	"github.com/wolkabout/wolkconnect-go/helpers/cli"
	"github.com/wolkabout/wolkconnect-go/internal/config"
	"github.com/wolkabout/wolkconnect-go/internal/manifest"
	"github.com/wolkabout/wolkconnect-go/internal/tele"
	"github.com/wolkabout/wolkconnect-go/log2"
)

const modName = "run"

const usage = `syntax:
- alarm REF on|off   set or reset alarm and publish it
- publish            publish sensor readings now
- status REF         publish actuator status
- buffered           show offline buffer size
- help               this text
`

var Mod = subcmd.Mod{Name: modName, Usage: "connect to broker and publish sensor readings [-interactive]", Main: Main}

func Main(ctx context.Context, cfg *config.Config, args []string) error {
	log := log2.ContextValueLogger(ctx)
	flagset := flag.NewFlagSet(modName, flag.ContinueOnError)
	flagInteractive := flagset.Bool("interactive", false, "read operator commands from stdin while running")
	if err := flagset.Parse(args); err != nil {
		return err
	}
	fs, err := config.NewOsFullReader(".")
	if err != nil {
		return err
	}
	m, err := manifest.Load(log, fs, cfg.Manifest)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.DefaultRegisterer
	t := tele.New()
	if err = t.Init(ctx, log, cfg, m, reg); err != nil {
		return errors.Annotate(err, "tele Init")
	}
	defer t.Close()

	if addr := cfg.Tele.MetricsListen; addr != "" {
		srv := serveMetrics(log, addr)
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutCancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	subcmd.SdNotify(log, daemon.SdNotifyReady)
	log.Infof("running publish interval=%v", cfg.Tele.PublishInterval())
	if *flagInteractive {
		done := make(chan struct{})
		go func() {
			defer close(done)
			t.RunSensors(ctx, cfg.Tele.PublishInterval(), helpers.RandUnix())
		}()
		log.Info(usage)
		if err = cli.MainLoop(modName, newExecutor(log, t, helpers.RandUnix()), newCompleter(t)); err != nil {
			log.Error(err)
		}
		cancel()
		<-done
	} else {
		t.RunSensors(ctx, cfg.Tele.PublishInterval(), helpers.RandUnix())
	}

	subcmd.SdNotify(log, daemon.SdNotifyStopping)
	readings, alarms := t.Buffered()
	log.Infof("stopping buffered readings=%d alarms=%d", readings, alarms)
	return nil
}

func serveMetrics(log *log2.Log, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Infof("metrics listen=%s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics listen=%s err=%v", addr, err)
		}
	}()
	return srv
}

func newCompleter(t *tele.Tele) func(d prompt.Document) []prompt.Suggest {
	m := t.Manifest()
	suggests := []prompt.Suggest{
		{Text: "alarm", Description: "alarm REF on|off"},
		{Text: "publish", Description: "publish sensor readings"},
		{Text: "status", Description: "status REF"},
		{Text: "buffered"},
		{Text: "help"},
	}
	for _, ref := range m.AlarmRefs() {
		suggests = append(suggests, prompt.Suggest{Text: ref, Description: "alarm"})
	}
	for _, ref := range m.ActuatorRefs() {
		suggests = append(suggests, prompt.Suggest{Text: ref, Description: "actuator"})
	}
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(log *log2.Log, t *tele.Tele, rnd *rand.Rand) func(string) {
	return func(line string) {
		words := strings.Fields(line)
		if len(words) == 0 {
			return
		}
		var err error
		switch words[0] {
		case "help":
			log.Info(usage)
		case "publish":
			err = t.PublishSensors(rnd)
		case "buffered":
			readings, alarms := t.Buffered()
			log.Infof("buffered readings=%d alarms=%d", readings, alarms)
		case "status":
			if len(words) != 2 {
				err = errors.NotValidf("expected: status REF")
				break
			}
			err = t.PublishActuator(words[1])
		case "alarm":
			if len(words) != 3 || (words[2] != "on" && words[2] != "off") {
				err = errors.NotValidf("expected: alarm REF on|off")
				break
			}
			if err = t.SetAlarm(words[1], words[2] == "on"); err == nil {
				log.Infof("alarm %s", t.Alarm(words[1]).String())
			}
		default:
			err = errors.NotValidf("command=%s", words[0])
		}
		if err != nil {
			log.Error(err)
		}
	}
}
