package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soyeahso/eventhost/internal/logging"
)

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// mapLister serves directory listings from memory.
type mapLister map[string][]string

func (m mapLister) List(dir string) ([]string, error) {
	names, ok := m[dir]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", dir, os.ErrNotExist)
	}
	return names, nil
}

// testPlugin records everything that happens to it.
type testPlugin struct {
	mu     sync.Mutex
	events []Payload

	loadErr    error
	processErr error
	unloadErr  error
	panicOn    string
	delay      func(Payload) time.Duration

	loads   atomic.Int32
	unloads atomic.Int32
	api     API

	// journal is shared between plugins to observe cross-plugin ordering.
	journal *journal
	name    string
}

func (p *testPlugin) Load(_ context.Context, api API) error {
	p.loads.Add(1)
	p.api = api
	return p.loadErr
}

func (p *testPlugin) ProcessEvent(ctx context.Context, payload Payload) error {
	if p.delay != nil {
		if d := p.delay(payload); d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if p.panicOn != "" {
		if _, ok := payload[p.panicOn]; ok {
			panic("boom")
		}
	}
	p.mu.Lock()
	p.events = append(p.events, payload)
	p.mu.Unlock()
	if p.journal != nil {
		p.journal.add("process:" + p.name)
	}
	return p.processErr
}

func (p *testPlugin) Unload(_ context.Context) error {
	p.unloads.Add(1)
	if p.journal != nil {
		p.journal.add("unload:" + p.name)
	}
	return p.unloadErr
}

func (p *testPlugin) seen() []Payload {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Payload, len(p.events))
	copy(out, p.events)
	return out
}

// bare implements only the mandatory capability.
type bare struct{ calls atomic.Int32 }

func (b *bare) ProcessEvent(context.Context, Payload) error {
	b.calls.Add(1)
	return nil
}

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	j.entries = append(j.entries, s)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.entries))
	copy(out, j.entries)
	return out
}

var errAlwaysFails = errors.New("always fails")

// instances wraps plugins as loaded registry instances, in order.
func instances(named ...any) []*Instance {
	var out []*Instance
	for i := 0; i < len(named); i += 2 {
		name := named[i].(string)
		out = append(out, &Instance{
			desc:   &Descriptor{Name: name, Source: name, State: StateLoaded},
			Plugin: named[i+1].(Plugin),
		})
	}
	return out
}

// factoryResolvers maps extension-less files to compiled-in factories.
func factoryResolvers(fs Factories) Resolvers {
	rs := Resolvers{}
	rs.Register("", fs)
	rs.Register(".ext", fs)
	return rs
}

func fixed(p Plugin) Factory {
	return func() (Plugin, error) { return p, nil }
}
