// ABOUTME: Entry point for Resonate Protocol server
// ABOUTME: Parses CLI flags and starts the server application
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/resonateaudio/resonate-core/internal/discovery"
	"github.com/resonateaudio/resonate-core/pkg/resonate"
)

var (
	port      = flag.Int("port", 8927, "WebSocket server port")
	name      = flag.String("name", "", "Server friendly name (default: hostname-resonate-server)")
	logFile   = flag.String("log-file", "resonate-server.log", "Log file path")
	debug     = flag.Bool("debug", false, "Enable debug logging")
	noMDNS    = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	audioFile = flag.String("audio", "", "Audio file to stream (MP3 or FLAC). If not specified, plays a test tone")
	rooms     = flag.String("rooms", "", "Comma-separated extra room names beyond the default group")
	tui       = flag.Bool("tui", false, "Show a live status display of groups and connected clients")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	if *tui {
		// The TUI owns stdout; route logging to the file only.
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-resonate-server", hostname)
	}

	log.Printf("Starting Resonate Server: %s on port %d", serverName, *port)
	if *debug {
		log.Printf("Debug logging enabled")
	}
	log.Printf("Logging to: %s", *logFile)
	log.Printf("Press Ctrl-C to stop")

	cfg := resonate.ServerConfig{
		Addr:       fmt.Sprintf(":%d", *port),
		Name:       serverName,
		EnableMDNS: !*noMDNS,
		Debug:      *debug,
		AudioFile:  *audioFile,
	}

	srv := resonate.NewServer(cfg)
	for _, room := range splitRooms(*rooms) {
		srv.AddGroup(room, room)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("received %v signal, shutting down gracefully...", sig)
		srv.Stop()
		cancel()
	}()

	if *tui {
		runWithTUI(ctx, srv, cancel)
	} else if err := srv.Start(ctx); err != nil {
		log.Printf("server error: %v", err)
		os.Exit(exitCode(err))
	}

	log.Printf("server stopped")
}

// exitCode maps a fatal error to the CLI exit-code contract: 2 for discovery
// failures, 1 for everything else.
func exitCode(err error) int {
	if errors.Is(err, discovery.ErrDiscovery) {
		return 2
	}
	return 1
}

// runWithTUI starts the server and a ServerTUI side by side: the TUI polls
// Server.StatusSnapshot on a ticker, and the TUI's quit key requests the
// same graceful shutdown as SIGINT/SIGTERM.
func runWithTUI(ctx context.Context, srv *resonate.Server, cancel context.CancelFunc) {
	t := resonate.NewServerTUI()

	go func() {
		<-t.QuitChan()
		srv.Stop()
		cancel()
	}()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Update(srv.StatusSnapshot())
			}
		}
	}()

	go func() {
		if err := srv.Start(ctx); err != nil {
			log.Printf("server error: %v", err)
		}
		t.Stop()
	}()

	if err := t.Start(srv.StatusSnapshot()); err != nil {
		log.Printf("tui error: %v", err)
	}
}

func splitRooms(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, room := range strings.Split(raw, ",") {
		if room = strings.TrimSpace(room); room != "" {
			out = append(out, room)
		}
	}
	return out
}
