// Package config reads agent configuration from HCL files.
// A file may include others: `include "name" { optional = true }`,
// later sources overwrite values of earlier ones.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/wolkabout/wolkconnect-go/helpers"
	"github.com/wolkabout/wolkconnect-go/internal/codec"
	"github.com/wolkabout/wolkconnect-go/log2"
)

const (
	DefaultNetworkTimeout  = 30 * time.Second
	DefaultKeepalive       = 60 * time.Second
	DefaultPublishInterval = 10 * time.Second
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []Source `hcl:"include"`

	Serial   string `hcl:"serial"`
	Password string `hcl:"password"`
	Codec    string `hcl:"codec"`
	Manifest string `hcl:"manifest"`
	LogDebug bool   `hcl:"log_debug"`

	MQTT   MQTT   `hcl:"mqtt"`
	Buffer Buffer `hcl:"buffer"`
	Tele   Tele   `hcl:"tele"`
}

type MQTT struct {
	Broker            string `hcl:"broker"`
	ClientID          string `hcl:"client_id"`
	QoS               int    `hcl:"qos"`
	KeepaliveSec      int    `hcl:"keepalive_sec"`
	NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
	TLSCAFile         string `hcl:"tls_ca_file"`
	TLSInsecure       bool   `hcl:"tls_insecure"`
	LogDebug          bool   `hcl:"log_debug"`
	// paho file store for in-flight QoS>0 messages, empty = memory
	StorePath string `hcl:"store_path"`
}

func (m *MQTT) Keepalive() time.Duration {
	return helpers.IntSecondDefault(m.KeepaliveSec, DefaultKeepalive)
}

func (m *MQTT) NetworkTimeout() time.Duration {
	return helpers.IntSecondDefault(m.NetworkTimeoutSec, DefaultNetworkTimeout)
}

type Buffer struct {
	ReadingsCapacity int  `hcl:"readings_capacity"`
	AlarmsCapacity   int  `hcl:"alarms_capacity"`
	Overwrite        bool `hcl:"overwrite"`
	// empty disables persistence
	PersistRoot string `hcl:"persist_root"`
}

type Tele struct {
	// spq directory for inbound commands, empty = in-memory
	QueuePath          string `hcl:"queue_path"`
	PublishIntervalSec int    `hcl:"publish_interval_sec"`
	MetricsListen      string `hcl:"metrics_listen"`
}

func (t *Tele) PublishInterval() time.Duration {
	return helpers.IntSecondDefault(t.PublishIntervalSec, DefaultPublishInterval)
}

type Source struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

// String is safe to log, password is masked.
func (c *Config) String() string {
	type plain Config
	p := plain(*c)
	if p.Password != "" {
		p.Password = "***"
	}
	p.includeSeen = nil
	return fmt.Sprintf("%+v", p)
}

func (c *Config) CodecKind() codec.Kind {
	k, err := codec.ParseKind(c.Codec)
	if err != nil {
		return ""
	}
	return k
}

func (c *Config) Validate() error {
	errs := make([]error, 0, 4)
	if c.Serial == "" {
		errs = append(errs, errors.NotValidf("config serial empty"))
	}
	if _, err := codec.ParseKind(c.Codec); err != nil {
		errs = append(errs, err)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, errors.NotValidf("config mqtt.qos=%d", c.MQTT.QoS))
	}
	if c.Buffer.ReadingsCapacity < 0 {
		errs = append(errs, errors.NotValidf("config buffer.readings_capacity=%d", c.Buffer.ReadingsCapacity))
	}
	if c.Buffer.AlarmsCapacity < 0 {
		errs = append(errs, errors.NotValidf("config buffer.alarms_capacity=%d", c.Buffer.AlarmsCapacity))
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) read(log *log2.Log, fs FullReader, source Source, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	if err = hcl.Unmarshal(bs, c); err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config unmarshal source=%s", source.Name))
		return
	}

	var includes []Source
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		if _, ok := c.includeSeen[fs.Normalize(include.Name)]; ok {
			*errs = append(*errs, errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name))
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// Read loads names in order, then validates result.
func Read(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.New("code error config.Read() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names = append([]string{name}, names[1:]...)
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, Source{Name: name}, &errs)
	}
	if len(errs) == 0 {
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return c, helpers.FoldErrors(errs)
}

func MustRead(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := Read(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
