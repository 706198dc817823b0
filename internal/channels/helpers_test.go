package channels

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/radio-control/meshchan/internal/lora"
)

var usLongFast = lora.Params{Region: lora.RegionUS, Preset: lora.PresetLongFast, UsePreset: true}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type memPersister struct {
	mu      sync.Mutex
	file    *File
	loadErr error
	saveErr error
	saves   int
}

func (m *memPersister) Load(ctx context.Context) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return File{}, m.loadErr
	}
	if m.file == nil {
		return File{}, ErrNoValidFile
	}
	return *m.file, nil
}

func (m *memPersister) Save(ctx context.Context, f File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.file = &f
	return nil
}

func (m *memPersister) stored() (File, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return File{}, m.saves
	}
	return *m.file, m.saves
}

type fakeEngine struct {
	mu   sync.Mutex
	keys []Key
	fail error
}

func (e *fakeEngine) SetKey(k Key) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	e.keys = append(e.keys, k)
	return nil
}

func (e *fakeEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.keys)
}

func (e *fakeEngine) last() Key {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.keys) == 0 {
		return Key{}
	}
	return e.keys[len(e.keys)-1]
}

var errDiskFull = errors.New("disk full")

func newDefaultTable(t interface{ Fatalf(string, ...any) }, p *memPersister) *Table {
	opts := []Option{WithLogger(quietLogger())}
	if p != nil {
		opts = append(opts, WithPersister(p))
	}
	tbl := NewTable(usLongFast, opts...)
	if err := tbl.InitDefaults(context.Background()); err != nil {
		t.Fatalf("init defaults: %v", err)
	}
	return tbl
}

func secondary(name string, psk []byte) Channel {
	return Channel{Role: RoleSecondary, Settings: Settings{Name: name, PSK: psk}}
}

func repeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
