package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/soyeahso/eventhost/internal/plugin"
	"github.com/soyeahso/eventhost/internal/plugin/builtin"
	"github.com/spf13/cobra"
)

const clientTimeout = 5 * time.Second

func newPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect plugins",
	}
	cmd.AddCommand(newPluginsListCmd())
	cmd.AddCommand(newPluginsKindsCmd())
	return cmd
}

func newPluginsListCmd() *cobra.Command {
	var (
		local  bool
		asJSON bool
		gwURL  string
		dirs   []string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List plugins of the running host, or discover them locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(dirs) > 0 {
				cfg.Host.PluginDirs = dirs
			}

			var descs []plugin.Descriptor
			if !local {
				client := newGatewayClient(cfg, gwURL, clientTimeout)
				ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
				resp, err := client.Plugins(ctx)
				cancel()
				if err == nil {
					descs = resp.Plugins
				} else {
					log.Debug().Err(err).Msg("gateway unreachable, discovering locally")
					local = true
				}
			}

			if local {
				loader := plugin.NewLoader(newResolvers(log), log, plugin.WithSuffix(cfg.Host.Suffix))
				cands, dirErrs := loader.Candidates(paths.PluginDirs(cfg.Host))
				for _, de := range dirErrs {
					log.Warn().Str("dir", de.Dir).Str("error", de.Err).Msg("plugin directory unreadable")
				}
				for _, c := range cands {
					descs = append(descs, plugin.Descriptor{Name: c.Name, Source: c.Path, State: plugin.StateDiscovered})
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if descs == nil {
					descs = []plugin.Descriptor{}
				}
				return enc.Encode(descs)
			}
			renderDescriptors(out, descs)
			return nil
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "skip the gateway and scan plugin directories")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print descriptors as JSON")
	cmd.Flags().StringVar(&gwURL, "url", "", "gateway base URL (default derived from config)")
	cmd.Flags().StringSliceVar(&dirs, "plugin-dir", nil, "plugin directory, repeatable (overrides host.pluginDirs)")
	return cmd
}

func newPluginsKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List builtin plugin kinds usable from YAML manifests",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range builtin.DefaultKinds().Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
