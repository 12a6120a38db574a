// main.go
package main

import (
	"fmt"
	"os"

	"github.com/phuslu/log"

	"rtthreads/internal/config"
	"rtthreads/internal/logger"
)

var (
	version = "0.1.0"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg == nil {
		// -generate-config was handled
		return
	}

	if err := logger.ConfigureLogging(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure loggers: %v\n", err)
		os.Exit(1)
	}

	daemon, err := NewDaemon(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize rtthreads")
	}
	if err := daemon.Run(); err != nil {
		log.Fatal().Err(err).Msg("rtthreads exited with an error")
	}
}
