// Meshrelay: the signaling relay for meshpeer.
//
// It assigns perfect-negotiation roles to every pair of peers and forwards
// their SDP and ICE messages. Media and data never pass through it.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	flag "github.com/spf13/pflag"

	"github.com/1ureka/p2pmesh/internal/config"
	"github.com/1ureka/p2pmesh/internal/relay"
	"github.com/1ureka/p2pmesh/internal/util"
)

var version = "dev"

func main() {
	configPath := flag.StringP("config", "c", "", "Path to a YAML config file")
	listen := flag.StringP("listen", "l", "", "Listen address (default :8080)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if flag.CommandLine.Changed("listen") {
		cfg.Relay.Listen = *listen
	}
	if *debugMode || cfg.Debug {
		util.EnableDebug()
	}
	if err := cfg.ValidateRelay(); err != nil {
		util.LogError("invalid configuration: %v", err)
		os.Exit(1)
	}

	pterm.Info.Println(fmt.Sprintf("Meshrelay — v%s", version))
	pterm.Println()

	hub := relay.NewHub()
	srv := &http.Server{
		Addr:              cfg.Relay.Listen,
		Handler:           relay.NewRouter(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		util.LogSuccess("relay listening on %s", cfg.Relay.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("failed to start relay: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	util.LogInfo("shutting down relay...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Shutdown does not touch hijacked WebSocket connections.
	hub.CloseAll()
	if err := srv.Shutdown(ctx); err != nil {
		util.LogWarning("relay forced to shut down: %v", err)
	}

	util.LogInfo("relay exited")
}
