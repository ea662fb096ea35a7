package builtin

import (
	"context"

	"github.com/soyeahso/eventhost/internal/logging"
	"github.com/soyeahso/eventhost/internal/plugin"
)

// KindConsole logs every payload through the host logger.
const KindConsole = "console"

// Console logs payloads. Settings: level (default info), message.
type Console struct {
	manifest Settings
	log      *logging.Logger
	level    string
	message  string
}

// NewConsole is the console constructor.
func NewConsole(settings Settings) plugin.Plugin {
	return &Console{manifest: settings}
}

func (p *Console) Load(_ context.Context, api plugin.API) error {
	s := merge(api.Settings, p.manifest)
	p.level = s.String("level", "info")
	p.message = s.String("message", "event received")
	p.log = api.Log
	if p.log == nil {
		p.log = logging.New(nil, "info")
	}
	return nil
}

func (p *Console) ProcessEvent(_ context.Context, payload plugin.Payload) error {
	p.log.Level(p.level).
		Int("keys", len(payload)).
		Interface("payload", map[string]any(payload)).
		Msg(p.message)
	return nil
}
