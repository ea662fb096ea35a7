package builtin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/eventhost/internal/logging"
	"github.com/soyeahso/eventhost/internal/plugin"
	"github.com/soyeahso/eventhost/internal/store"
)

// KindSQLiteRecorder stores each payload in an event store.
const KindSQLiteRecorder = "sqlite_recorder"

// DefaultRecorderPath is the SQLite file used when no path is configured.
const DefaultRecorderPath = "events.db"

// Recorder inserts payloads into a store.EventStore.
//
// Settings: store (sqlite|memory), path, retention (events older than this
// are pruned on load).
type Recorder struct {
	manifest Settings
	name     string
	log      *logging.Logger

	// mu guards store; an abandoned ProcessEvent may still be running when
	// Unload is called.
	mu    sync.RWMutex
	store store.EventStore
}

// NewRecorder is the sqlite_recorder constructor.
func NewRecorder(settings Settings) plugin.Plugin {
	return &Recorder{manifest: settings}
}

func (p *Recorder) Load(ctx context.Context, api plugin.API) error {
	s := merge(api.Settings, p.manifest)
	p.name = api.Name
	p.log = api.Log
	if p.log == nil {
		p.log = logging.New(nil, "silent")
	}

	es, err := store.OpenEventStore(s.String("store", store.BackendSQLite), s.String("path", DefaultRecorderPath), p.log)
	if err != nil {
		return fmt.Errorf("opening event store: %w", err)
	}

	if retention := s.Duration("retention", 0); retention > 0 {
		n, err := es.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			es.Close()
			return fmt.Errorf("pruning events: %w", err)
		}
		p.log.Info().Int64("pruned", n).Dur("retention", retention).Msg("old events pruned")
	}

	p.mu.Lock()
	p.store = es
	p.mu.Unlock()
	return nil
}

func (p *Recorder) ProcessEvent(ctx context.Context, payload plugin.Payload) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.store == nil {
		return errors.New("recorder not loaded")
	}
	_, err := p.store.Append(ctx, store.Event{Source: p.name, Payload: payload})
	return err
}

func (p *Recorder) Unload(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store == nil {
		return nil
	}
	err := p.store.Close()
	p.store = nil
	return err
}

// Store returns the underlying event store, nil before Load.
func (p *Recorder) Store() store.EventStore {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store
}
