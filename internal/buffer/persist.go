package buffer

import (
	"encoding"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/extremofile"
	"github.com/wolkabout/wolkconnect-go/log2"
)

type Stater interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type storage interface {
	Read() ([]byte, error)
	io.Writer
}

// Persist binds buffer Marshal/Unmarshal to files under root/tag.
// Disabled Persist is a valid no-op.
type Persist struct {
	sync.Mutex
	log     *log2.Log
	tag     string
	target  Stater
	storage storage
}

func (p *Persist) Init(tag string, target Stater, root string, enabled bool, log *log2.Log) error {
	p.tag = tag
	p.log = log
	if !enabled {
		p.log.Debugf("persist %s disabled", p.tag)
		return nil
	}
	if root == "" {
		return errors.Errorf("persist %s enabled but root=empty", p.tag)
	}
	if target == nil {
		panic("code error persist target nil")
	}
	p.target = target
	p.storage = extremofile.New(extremofile.Config{
		Dir:      filepath.Join(root, tag),
		DirPerm:  0755,
		FilePerm: 0644,
	})
	return nil
}

func (p *Persist) Enabled() bool { return p.storage != nil }

// Load restores target from storage. Missing files are not an error.
// Deserialization failure keeps target untouched, check with IsDeserialization.
func (p *Persist) Load() error {
	if p.tag == "" {
		panic("code error persist must call .Init() first")
	}
	if p.storage == nil {
		return nil
	}
	p.Lock()
	defer p.Unlock()
	tbegin := time.Now()
	b, err := p.storage.Read()
	p.log.Debugf("persist %s storage.read duration=%v", p.tag, time.Since(tbegin))
	if extremofile.IsCritical(err) {
		return errors.Annotatef(err, "persist %s Load", p.tag)
	}
	if err != nil {
		p.log.Errorf("persist %s ignore non-critical storage err=%v", p.tag, err)
	}
	if b == nil {
		return nil
	}
	return errors.Annotatef(p.target.UnmarshalBinary(b), "persist %s Load", p.tag)
}

func (p *Persist) Store() error {
	if p.tag == "" {
		panic("code error persist must call .Init() first")
	}
	if p.storage == nil {
		return nil
	}
	p.Lock()
	defer p.Unlock()
	b, err := p.target.MarshalBinary()
	if err == nil {
		tbegin := time.Now()
		_, err = p.storage.Write(b)
		p.log.Debugf("persist %s storage.write duration=%v", p.tag, time.Since(tbegin))
	}
	return errors.Annotatef(err, "persist %s Store", p.tag)
}
