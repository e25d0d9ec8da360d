// ABOUTME: Entry point for the Resonate reference player
// ABOUTME: Parses CLI flags, discovers or dials a server, and runs playback with an optional TUI
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/resonateaudio/resonate-core/internal/discovery"
	"github.com/resonateaudio/resonate-core/internal/transport"
	"github.com/resonateaudio/resonate-core/internal/ui"
	"github.com/resonateaudio/resonate-core/pkg/resonate"
)

var (
	serverAddr = flag.String("server", "", "Manual server WebSocket URL, e.g. ws://host:8927/resonate (skip mDNS)")
	name       = flag.String("name", "", "Player friendly name (default: hostname-resonate-player)")
	bufferMs   = flag.Int("buffer-ms", 150, "Jitter buffer size in milliseconds")
	logFile    = flag.String("log-file", "resonate-player.log", "Log file path")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	noTUI      = flag.Bool("no-tui", false, "Disable the terminal UI, log status lines instead")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	var logger *log.Logger
	if *noTUI {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
		logger = log.Default()
	} else {
		// The TUI owns stdout; route protocol logging to the file only.
		logger = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
	}

	playerName := *name
	if playerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		playerName = fmt.Sprintf("%s-resonate-player", hostname)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	cfg := resonate.PlayerConfig{
		Name:     playerName,
		BufferMs: *bufferMs,
		Debug:    *debug,
		Logger:   logger,
	}

	var current atomic.Pointer[resonate.Player]
	dial := func(ctx context.Context, url string) error {
		cl := resonate.NewPlayer(cfg)
		current.Store(cl)
		logger.Printf("player: dialing %s", url)
		return cl.Start(ctx, url)
	}
	reconnector := transport.NewReconnector(dial, logger, 30*time.Second)

	if *serverAddr != "" {
		reconnector.Connect(ctx, *serverAddr)
	} else {
		manager := discovery.NewManager()
		glue := discovery.NewGlue(manager, reconnector, logger)
		logger.Printf("player: browsing for %s", discovery.ServiceServer)
		go func() {
			if err := glue.WatchServers(ctx); err != nil {
				log.Printf("discovery failed: %v", err)
				os.Exit(2)
			}
		}()
	}

	if *noTUI {
		runHeadless(ctx, &current, logger)
		return
	}

	vc := ui.NewVolumeControl()
	program, err := ui.Run(ui.NewModel(vc))
	if err != nil {
		log.Fatalf("tui error: %v", err)
	}

	go pollStatus(ctx, &current, program)
	go applyVolumeChanges(ctx, &current, vc)

	if _, err := program.Run(); err != nil {
		log.Fatalf("tui run error: %v", err)
	}
	cancel()
}

// runHeadless logs status lines instead of driving a TUI, for scripted or
// non-interactive use (CI, remote debugging).
func runHeadless(ctx context.Context, current *atomic.Pointer[resonate.Player], logger *log.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cl := current.Load()
			if cl == nil {
				continue
			}
			st := cl.Status()
			logger.Printf("status: connected=%v server=%q codec=%s rtt=%dus received=%d played=%d dropped=%d",
				st.Connected, st.ServerName, st.Codec, st.Clock.RTT, st.Stats.Received, st.Stats.Played, st.Stats.Dropped)
		}
	}
}

// pollStatus periodically pushes the current Client's Status to the TUI
// program as a StatusMsg.
func pollStatus(ctx context.Context, current *atomic.Pointer[resonate.Player], program *tea.Program) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cl := current.Load()
			if cl == nil {
				continue
			}
			st := cl.Status()
			connected := st.Connected
			program.Send(ui.StatusMsg{
				Connected:   &connected,
				ServerName:  st.ServerName,
				SyncOffset:  st.Clock.Offset,
				SyncRTT:     st.Clock.RTT,
				SyncQuality: cl.ClockQuality(),
				Codec:       st.Codec,
				SampleRate:  st.SampleRate,
				Channels:    st.Channels,
				BitDepth:    st.BitDepth,
				Title:       st.Metadata.Title,
				Artist:      st.Metadata.Artist,
				Album:       st.Metadata.Album,
				ArtworkPath: st.Metadata.ArtworkURL,
				Volume:      st.Volume,
				Muted:       st.Muted,
				Received:    st.Stats.Received,
				Played:      st.Stats.Played,
				Dropped:     st.Stats.Dropped,
			})
		}
	}
}

// applyVolumeChanges drains the TUI's VolumeControl and applies each change
// to whichever Client is currently active.
func applyVolumeChanges(ctx context.Context, current *atomic.Pointer[resonate.Player], vc *ui.VolumeControl) {
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-vc.Changes:
			if cl := current.Load(); cl != nil {
				cl.SetVolume(change.Volume)
				cl.SetMuted(change.Muted)
			}
		case <-vc.Quit:
			return
		}
	}
}
