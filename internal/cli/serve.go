package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/eventhost/internal/config"
	"github.com/soyeahso/eventhost/internal/gateway"
	"github.com/soyeahso/eventhost/internal/hooks"
	"github.com/soyeahso/eventhost/internal/logging"
	"github.com/soyeahso/eventhost/internal/plugin"
	"github.com/soyeahso/eventhost/internal/plugin/builtin"
	"github.com/soyeahso/eventhost/internal/plugin/lua"
	"github.com/spf13/cobra"
)

// hookWaitTimeout bounds how long shutdown waits for async hook handlers.
const hookWaitTimeout = 5 * time.Second

// newResolvers returns the construction capabilities known to the binary:
// Lua scripts and YAML manifests naming builtin kinds.
func newResolvers(log *logging.Logger) plugin.Resolvers {
	rs := plugin.Resolvers{}
	rs.Register(".lua", lua.NewResolver(log))
	builtin.Register(rs, builtin.DefaultKinds())
	return rs
}

// hostOptions translates configuration into plugin host options.
func hostOptions(cfg config.Config) (plugin.Options, error) {
	mode, err := plugin.ParseMode(cfg.Host.DispatchMode)
	if err != nil {
		return plugin.Options{}, err
	}
	return plugin.Options{
		Dirs:           paths.PluginDirs(cfg.Host),
		Suffix:         cfg.Host.Suffix,
		Mode:           mode,
		DrainTimeout:   cfg.Host.DrainTimeout,
		ProcessTimeout: cfg.Host.ProcessTimeout,
		UnloadTimeout:  cfg.Host.UnloadTimeout,
		QueueSize:      cfg.Host.QueueSize,
		AllowEmpty:     cfg.Host.AllowsEmpty(),
		Settings:       cfg.Plugins,
	}, nil
}

func newServeCmd() *cobra.Command {
	var (
		port      int
		bind      string
		dirs      []string
		mode      string
		noGateway bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load plugins and serve events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if len(dirs) > 0 {
				cfg.Host.PluginDirs = dirs
			}
			if mode != "" {
				cfg.Host.DispatchMode = mode
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			root, closer, err := logging.Open(logging.Options{
				Level:        cfg.Logging.Level,
				ConsoleStyle: cfg.Logging.ConsoleStyle,
				File:         config.ExpandHome(cfg.Logging.File),
			})
			if err != nil {
				return err
			}
			defer closer.Close()

			opts, err := hostOptions(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, opts, !noGateway, root)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")
	cmd.Flags().StringSliceVar(&dirs, "plugin-dir", nil, "plugin directory, repeatable (overrides host.pluginDirs)")
	cmd.Flags().StringVar(&mode, "mode", "", "dispatch mode (sequential, concurrent)")
	cmd.Flags().BoolVar(&noGateway, "no-gateway", false, "load plugins and wait without listening")

	return cmd
}

// serve starts the host, runs the gateway until ctx is cancelled, then stops
// the gateway before draining and unloading plugins.
func serve(ctx context.Context, cfg config.Config, opts plugin.Options, withGateway bool, root *logging.Logger) error {
	hookMgr := hooks.NewManager(root)
	host := plugin.NewHost(opts, newResolvers(root), root, plugin.WithHostHooks(hookMgr))

	report, err := host.Startup(ctx)
	if err != nil {
		host.Shutdown(context.Background())
		return err
	}
	for _, d := range report.Failures() {
		root.Warn().Str("plugin", d.Name).Str("source", d.Source).Str("error", d.LastError).Msg("plugin not loaded")
	}

	var gwErr error
	if withGateway {
		srv := gateway.New(cfg, host, root, gateway.WithHooks(hookMgr))
		gwErr = srv.Start(ctx)
		if gwErr != nil && !errors.Is(gwErr, context.Canceled) {
			root.Error().Err(gwErr).Msg("gateway stopped")
		}
	} else {
		<-ctx.Done()
	}

	sr := host.Shutdown(context.Background())
	for _, f := range sr.UnloadErrors {
		root.Warn().Str("plugin", f.Plugin).Str("error", f.Reason).Msg("unload failed")
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), hookWaitTimeout)
	defer cancel()
	if err := hookMgr.Wait(waitCtx); err != nil {
		root.Warn().Err(err).Msg("hook handlers still running at exit")
	}

	root.Info().
		Int("unloaded", sr.Unloaded).
		Bool("drainTimedOut", sr.DrainTimedOut).
		Msg("eventhost stopped")
	return gwErr
}
