package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newSendCmd() *cobra.Command {
	var (
		file   string
		gwURL  string
		strict bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "send [json|-]",
		Short: "Submit one JSON event to the running host",
		Long: "Submit one JSON object to the running host through its gateway and print\n" +
			"the per-plugin outcome. Pass the object as an argument, \"-\" for stdin, or --file.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), args, file)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := newGatewayClient(cfg, gwURL, 0)

			out, err := client.Submit(cmd.Context(), payload)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(out); err != nil {
					return err
				}
			} else {
				renderOutcome(w, out)
			}

			if strict && len(out.Failures()) > 0 {
				return fmt.Errorf("%d plugin(s) failed to process event %s", len(out.Failures()), out.EventID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read the event from a file")
	cmd.Flags().StringVar(&gwURL, "url", "", "gateway base URL (default derived from config)")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any plugin fails")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outcome as JSON")
	return cmd
}

// readPayload returns the event body and checks that it is a JSON object.
func readPayload(stdin io.Reader, args []string, file string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case file != "" && len(args) > 0:
		return nil, errors.New("pass the event as an argument or --file, not both")
	case file != "":
		data, err = os.ReadFile(file)
	case len(args) == 0 || args[0] == "-":
		data, err = io.ReadAll(stdin)
	default:
		data = []byte(args[0])
	}
	if err != nil {
		return nil, err
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("event must be a JSON object: %s", strings.TrimSpace(string(data)))
	}
	return data, nil
}
