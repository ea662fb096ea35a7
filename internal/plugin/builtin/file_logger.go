package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/soyeahso/eventhost/internal/logging"
	"github.com/soyeahso/eventhost/internal/plugin"
)

// KindFileLogger appends each payload to a file as one JSON line.
const KindFileLogger = "file_logger"

// DefaultLogFile is used when no path is configured.
const DefaultLogFile = "events.log"

// FileLogger writes payloads as JSON lines.
type FileLogger struct {
	manifest Settings

	mu   sync.Mutex
	f    *os.File
	path string
	sync bool
	log  *logging.Logger
}

// NewFileLogger is the file_logger constructor.
func NewFileLogger(settings Settings) plugin.Plugin {
	return &FileLogger{manifest: settings}
}

// Load opens the log file for appending. Settings: path, fsync.
func (p *FileLogger) Load(_ context.Context, api plugin.API) error {
	s := merge(api.Settings, p.manifest)
	path := s.String("path", DefaultLogFile)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}

	p.mu.Lock()
	p.f, p.path, p.sync, p.log = f, path, s.Bool("fsync", false), api.Log
	p.mu.Unlock()

	if p.log != nil {
		p.log.Info().Str("path", path).Msg("file logger ready")
	}
	return nil
}

// ProcessEvent appends the payload.
func (p *FileLogger) ProcessEvent(_ context.Context, payload plugin.Payload) error {
	line, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	line = append(line, '\n')

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.f == nil {
		return errors.New("file logger not loaded")
	}
	if _, err := p.f.Write(line); err != nil {
		return fmt.Errorf("writing %s: %w", p.path, err)
	}
	if p.sync {
		return p.f.Sync()
	}
	return nil
}

// Unload closes the file.
func (p *FileLogger) Unload(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.f == nil {
		return nil
	}
	err := p.f.Close()
	p.f = nil
	return err
}

// Path returns the file being written, once loaded.
func (p *FileLogger) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}
