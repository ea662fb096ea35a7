package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/soyeahso/eventhost/internal/config"
	"github.com/soyeahso/eventhost/internal/gateway"
	"github.com/soyeahso/eventhost/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var gwURL string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show eventhost status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headerStyle.Render(version.Info()))
			fmt.Fprintln(out)

			row(out, "Config", paths.Config)
			row(out, "Data", paths.Data)
			row(out, "Logs", paths.Logs)
			fmt.Fprintln(out)

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				row(out, "Config", dimStyle.Render("not found (using defaults)"))
			}
			cfg, err := loadConfig()
			if err != nil {
				row(out, "Config", failStyle.Render("error loading: "+err.Error()))
				return nil
			}

			allow := "no"
			if cfg.Host.AllowsEmpty() {
				allow = "yes"
			}
			row(out, "Host", fmt.Sprintf("mode=%s suffix=%q allowEmpty=%s", cfg.Host.DispatchMode, cfg.Host.Suffix, allow))
			row(out, "Timeouts", fmt.Sprintf("drain=%s process=%s unload=%s",
				durationOrNone(cfg.Host.DrainTimeout), durationOrNone(cfg.Host.ProcessTimeout), durationOrNone(cfg.Host.UnloadTimeout)))
			row(out, "Plugins", strings.Join(paths.PluginDirs(cfg.Host), ", "))
			if len(cfg.Plugins) > 0 {
				row(out, "Settings", strings.Join(slices.Sorted(maps.Keys(cfg.Plugins)), ", "))
			}

			auth := gateway.ResolveAuth(cfg.Gateway.Auth)
			row(out, "Gateway", fmt.Sprintf("port=%d bind=%s auth=%s tls=%v",
				cfg.Gateway.Port, cfg.Gateway.Bind, auth.Mode, cfg.Gateway.TLS.Enabled))
			row(out, "Logging", fmt.Sprintf("level=%s style=%s", cfg.Logging.Level, cfg.Logging.ConsoleStyle))

			client := newGatewayClient(cfg, gwURL, clientTimeout)
			ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
			defer cancel()
			if h, err := client.Health(ctx); err != nil {
				row(out, "Running", dimStyle.Render("no (gateway unreachable)"))
			} else {
				row(out, "Running", okStyle.Render(fmt.Sprintf("yes (plugins=%d events=%d clients=%d uptime=%s)",
					h.Plugins, h.Events, h.Clients, (time.Duration(h.UptimeMs)*time.Millisecond).String())))
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\n%s\n", failStyle.Render(fmt.Sprintf("Validation issues (%d):", len(issues))))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&gwURL, "url", "", "gateway base URL (default derived from config)")
	return cmd
}

func row(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render(label+":"), value)
}

func durationOrNone(d time.Duration) string {
	if d <= 0 {
		return "none"
	}
	return d.String()
}
