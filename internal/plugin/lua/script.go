package lua

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/soyeahso/eventhost/internal/logging"
	"github.com/soyeahso/eventhost/internal/plugin"
	lua "github.com/yuin/gopher-lua"
)

// ErrClosed is returned by a script plugin after Unload.
var ErrClosed = errors.New("lua state closed")

// Resolver builds Script plugins from *.lua candidates.
type Resolver struct {
	log *logging.Logger
}

// NewResolver creates a Lua resolver. Scripts log through log until their
// Load receives a plugin-scoped logger.
func NewResolver(log *logging.Logger) *Resolver {
	return &Resolver{log: log.Sub("lua")}
}

// Resolve runs the script's top-level chunk and checks that it defines
// process_event.
func (r *Resolver) Resolve(ctx context.Context, c plugin.Candidate) (plugin.Plugin, error) {
	return Open(ctx, c.Path, r.log.With("plugin", c.Name))
}

// Script is a plugin backed by one Lua state. gopher-lua states are not
// goroutine-safe, so every call holds mu.
type Script struct {
	path string

	mu     sync.Mutex
	L      *lua.LState
	log    *logging.Logger
	closed bool
}

// Open loads the script at path into a fresh sandboxed state.
func Open(ctx context.Context, path string, log *logging.Logger) (*Script, error) {
	L, err := newState()
	if err != nil {
		return nil, err
	}
	s := &Script{path: path, L: L, log: log}
	s.installLog()

	if ctx != nil {
		L.SetContext(ctx)
	}
	err = L.DoFile(path)
	if ctx != nil {
		L.RemoveContext()
	}
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("running %s: %w", path, err)
	}

	if _, ok := function(L, FuncProcessEvent); !ok {
		L.Close()
		return nil, fmt.Errorf("%s: %w", path, plugin.ErrMissingProcessEvent)
	}
	return s, nil
}

// Load stores settings in the global `settings` table and calls load(settings)
// when the script defines it.
func (s *Script) Load(ctx context.Context, api plugin.API) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if api.Log != nil {
		s.log = api.Log
	}
	settings := toLua(s.L, api.Settings)
	s.L.SetGlobal("settings", settings)

	fn, ok := function(s.L, FuncLoad)
	if !ok {
		return nil
	}
	results, err := call(ctx, s.L, fn, settings)
	if err != nil {
		return err
	}
	return failure(results)
}

// ProcessEvent calls process_event(payload). The call is aborted when ctx is
// done.
func (s *Script) ProcessEvent(ctx context.Context, payload plugin.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	fn, ok := function(s.L, FuncProcessEvent)
	if !ok {
		return plugin.ErrMissingProcessEvent
	}
	results, err := call(ctx, s.L, fn, toLua(s.L, map[string]any(payload)))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return failure(results)
}

// Unload calls unload() when defined and closes the state. The state is
// closed even when unload fails.
func (s *Script) Unload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	defer func() {
		s.L.Close()
		s.closed = true
	}()

	fn, ok := function(s.L, FuncUnload)
	if !ok {
		return nil
	}
	results, err := call(ctx, s.L, fn)
	if err != nil {
		return err
	}
	return failure(results)
}

// installLog exposes log.trace/debug/info/warn/error(msg, [fields]) and
// routes print() to the info level.
func (s *Script) installLog() {
	funcs := map[string]lua.LGFunction{}
	for _, level := range []string{"trace", "debug", "info", "warn", "error"} {
		funcs[level] = s.logFunc(level)
	}
	s.L.SetGlobal("log", s.L.SetFuncs(s.L.NewTable(), funcs))

	s.L.SetGlobal("print", s.L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, L.GetTop())
		for i := range parts {
			parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
		}
		s.log.Info().Msg(strings.Join(parts, "\t"))
		return 0
	}))
}

func (s *Script) logFunc(level string) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.CheckString(1)
		ev := s.log.Level(level)
		if t, ok := L.Get(2).(*lua.LTable); ok {
			keys, fields := fieldsOf(t)
			for _, k := range keys {
				ev = withField(ev, k, fields[k])
			}
		}
		ev.Msg(msg)
		return 0
	}
}

func withField(ev *zerolog.Event, key string, v any) *zerolog.Event {
	switch val := v.(type) {
	case string:
		return ev.Str(key, val)
	case int64:
		return ev.Int64(key, val)
	case float64:
		return ev.Float64(key, val)
	case bool:
		return ev.Bool(key, val)
	default:
		return ev.Interface(key, val)
	}
}
