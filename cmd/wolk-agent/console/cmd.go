// Console decodes broker payloads and shows what device would publish.
package console

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/wolkabout/wolkconnect-go/cmd/wolk-agent/subcmd"
	"github.com/wolkabout/wolkconnect-go/helpers"
	"github.com/wolkabout/wolkconnect-go/helpers/cli"
	"github.com/wolkabout/wolkconnect-go/internal/codec"
	"github.com/wolkabout/wolkconnect-go/internal/config"
	"github.com/wolkabout/wolkconnect-go/internal/manifest"
	"github.com/wolkabout/wolkconnect-go/internal/types"
	"github.com/wolkabout/wolkconnect-go/log2"
)

const modName = "console"

const usage = `syntax:
- TOPIC PAYLOAD   decode inbound message, print commands
- encode          print outbound messages for every manifest entity
- help            this text
`

var Mod = subcmd.Mod{Name: modName, Usage: "decode and encode messages with configured codec", Main: Main}

func Main(ctx context.Context, cfg *config.Config, args []string) error {
	log := log2.ContextValueLogger(ctx)
	fs, err := config.NewOsFullReader(".")
	if err != nil {
		return err
	}
	m, err := manifest.Load(log, fs, cfg.Manifest)
	if err != nil {
		return err
	}
	c, err := codec.New(cfg.CodecKind(), cfg.Serial, log)
	if err != nil {
		return err
	}

	log.Infof("%s codec=%s %s", modName, c.Kind(), m.String())
	log.Info(usage)
	return cli.MainLoop(modName, newExecutor(log, c, m, helpers.RandUnix()), newCompleter(c, m))
}

func newCompleter(c codec.Codec, m *manifest.Manifest) func(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: "encode", Description: "print outbound messages"},
		{Text: "help"},
	}
	for _, topic := range c.SubscriptionTopics(m.ActuatorRefs()) {
		suggests = append(suggests, prompt.Suggest{Text: topic, Description: "inbound topic"})
	}
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(log *log2.Log, c codec.Codec, m *manifest.Manifest, rnd *rand.Rand) func(string) {
	return func(line string) {
		line = strings.TrimSpace(line)
		switch line {
		case "":
			return
		case "help":
			log.Info(usage)
			return
		case "encode":
			encodeAll(log, c, m, rnd)
			return
		}

		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			log.Errorf("expected: TOPIC PAYLOAD")
			return
		}
		cmds := c.Decode(parts[0], []byte(strings.TrimSpace(parts[1])))
		if len(cmds) == 0 {
			log.Infof("no commands")
		}
		for _, cmd := range cmds {
			log.Infof("command %s", cmd.String())
		}
	}
}

func encodeAll(log *log2.Log, c codec.Codec, m *manifest.Manifest, rnd *rand.Rand) {
	show := func(msg *codec.Message, err error) {
		if err != nil {
			log.Error(err)
			return
		}
		if msg != nil {
			log.Infof("topic=%s payload=%s", msg.Topic, msg.Payload)
		}
	}

	now := time.Now().Unix()
	rs := make([]*types.Reading, 0, len(m.Sensors))
	for _, rt := range m.Sensors {
		rs = append(rs, types.NewReading(rt, now, rt.RandomValues(rnd)...))
	}
	coll := types.FromReadings(rs)
	show(c.EncodeCollection(&coll))
	for _, alarm := range m.Alarms {
		a := alarm.Clone()
		a.SetTimestamp(now)
		show(c.EncodeAlarm(a))
	}
	for _, a := range m.Actuators {
		show(c.EncodeActuator(a))
	}
}
