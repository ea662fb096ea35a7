package builtin

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/lrstanley/girc"
	"github.com/soyeahso/eventhost/internal/logging"
	"github.com/soyeahso/eventhost/internal/plugin"
)

// KindIRCRelay posts a one-line summary of each payload to IRC channels.
const KindIRCRelay = "irc_relay"

// maxLineLen keeps PRIVMSG lines under the 512-byte protocol limit.
const maxLineLen = 400

// ircClient is the part of *girc.Client the relay uses.
type ircClient interface {
	Connect() error
	IsConnected() bool
	Message(target, msg string)
	Join(channel string)
	OnConnected(fn func())
	OnDisconnected(fn func())
	Quit(reason string)
	Close()
}

// gircClient adapts *girc.Client to ircClient.
type gircClient struct {
	c *girc.Client
}

func (g gircClient) Connect() error             { return g.c.Connect() }
func (g gircClient) IsConnected() bool          { return g.c.IsConnected() }
func (g gircClient) Message(target, msg string) { g.c.Cmd.Message(target, msg) }
func (g gircClient) Join(channel string)        { g.c.Cmd.Join(channel) }
func (g gircClient) Quit(reason string)         { g.c.Quit(reason) }
func (g gircClient) Close()                     { g.c.Close() }

func (g gircClient) OnConnected(fn func()) {
	g.c.Handlers.Add(girc.CONNECTED, func(_ *girc.Client, _ girc.Event) { fn() })
}

func (g gircClient) OnDisconnected(fn func()) {
	g.c.Handlers.Add(girc.DISCONNECTED, func(_ *girc.Client, _ girc.Event) { fn() })
}

// newIRCClient builds the real client; tests replace it.
var newIRCClient = func(cfg girc.Config) ircClient {
	return gircClient{c: girc.New(cfg)}
}

// IRCRelay announces events on IRC.
//
// Settings: server, port, nick, channels, tls, password, sasl, prefix, and
// fields (payload keys to include; all keys when empty).
type IRCRelay struct {
	manifest Settings
	log      *logging.Logger

	channels []string
	prefix   string
	fields   []string

	mu      sync.RWMutex
	client  ircClient
	lastErr string
}

// NewIRCRelay is the irc_relay constructor.
func NewIRCRelay(settings Settings) plugin.Plugin {
	return &IRCRelay{manifest: settings}
}

// Load starts connecting in the background. Events arriving before the
// connection is up fail with "not connected".
func (p *IRCRelay) Load(_ context.Context, api plugin.API) error {
	s := merge(api.Settings, p.manifest)
	p.log = api.Log
	if p.log == nil {
		p.log = logging.New(nil, "silent")
	}

	server := s.String("server", "")
	if server == "" {
		return errors.New("irc_relay: server is required")
	}
	p.channels = s.Strings("channels")
	if len(p.channels) == 0 {
		return errors.New("irc_relay: at least one channel is required")
	}
	p.prefix = s.String("prefix", "")
	p.fields = s.Strings("fields")

	useTLS := s.Bool("tls", false)
	port := s.Int("port", 0)
	if port == 0 {
		if useTLS {
			port = 6697
		} else {
			port = 6667
		}
	}
	nick := s.String("nick", "eventhost")

	cfg := girc.Config{
		Server:  server,
		Port:    port,
		Nick:    nick,
		User:    nick,
		Name:    "eventhost relay",
		SSL:     useTLS,
		Version: "eventhost",
	}
	if useTLS {
		cfg.TLSConfig = &tls.Config{ServerName: server}
	}
	if password := s.String("password", ""); password != "" {
		if s.Bool("sasl", false) {
			cfg.SASL = &girc.SASLPlain{User: nick, Pass: password}
		} else {
			cfg.ServerPass = password
		}
	}

	client := newIRCClient(cfg)
	client.OnConnected(func() {
		p.log.Info().Str("nick", nick).Msg("connected to IRC")
		for _, ch := range p.channels {
			client.Join(ch)
			p.log.Info().Str("channel", ch).Msg("joined channel")
		}
	})
	client.OnDisconnected(func() {
		p.log.Warn().Msg("disconnected from IRC")
	})

	p.mu.Lock()
	p.client = client
	p.mu.Unlock()

	p.log.Info().
		Str("server", server).
		Int("port", port).
		Str("nick", nick).
		Strs("channels", p.channels).
		Bool("tls", useTLS).
		Msg("connecting to IRC")

	go func() {
		if err := client.Connect(); err != nil {
			p.mu.Lock()
			p.lastErr = err.Error()
			p.mu.Unlock()
			p.log.Error().Err(err).Msg("irc connection ended")
		}
	}()
	return nil
}

// ProcessEvent posts the payload summary to every configured channel.
func (p *IRCRelay) ProcessEvent(_ context.Context, payload plugin.Payload) error {
	p.mu.RLock()
	client, lastErr := p.client, p.lastErr
	p.mu.RUnlock()

	if client == nil || !client.IsConnected() {
		if lastErr != "" {
			return fmt.Errorf("irc: not connected: %s", lastErr)
		}
		return errors.New("irc: not connected")
	}

	lines := splitMessage(p.prefix+summarize(payload, p.fields), maxLineLen)
	for _, ch := range p.channels {
		for _, line := range lines {
			client.Message(ch, line)
		}
	}
	return nil
}

// Unload quits and closes the connection.
func (p *IRCRelay) Unload(context.Context) error {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.mu.Unlock()

	if client == nil {
		return nil
	}
	if client.IsConnected() {
		p.log.Info().Msg("disconnecting from IRC")
		client.Quit("eventhost shutting down")
	}
	client.Close()
	return nil
}

// summarize renders payload as "k=v" pairs in key order, limited to fields
// when given.
func summarize(payload plugin.Payload, fields []string) string {
	keys := fields
	if len(keys) == 0 {
		keys = make([]string, 0, len(payload))
		for k := range payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok := payload[k]
		if !ok {
			continue
		}
		parts = append(parts, k+"="+renderValue(v))
	}
	return strings.Join(parts, " ")
}

func renderValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return "null"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// splitMessage breaks text into IRC-sized lines. Each newline starts a new
// line and lines longer than maxLen bytes are split on a rune boundary.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLen {
			cut := maxLen
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if line != "" {
			chunks = append(chunks, line)
		}
	}
	return chunks
}
