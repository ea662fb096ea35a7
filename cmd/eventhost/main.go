package main

import (
	"fmt"
	"os"

	"github.com/soyeahso/eventhost/internal/cli"
	"github.com/tillberg/autorestart"
)

func main() {
	// re-exec when the binary is rebuilt; development only
	if os.Getenv("EVENTHOST_AUTORESTART") != "" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
