// Command rtcsignal runs the relay server or joins a room as a peer.
//
// This tool runs both sides of a two-party WebRTC signaling exchange: the
// relay/room server (serve) and a peer that joins a room and negotiates a
// media session through it (join).
//
// It can be launched interactively (no arguments) or non-interactively via a
// subcommand and its flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/rtcsignal/internal/config"
	"github.com/1ureka/rtcsignal/internal/pubsub"
	"github.com/1ureka/rtcsignal/internal/relay"
	"github.com/1ureka/rtcsignal/internal/signaling"
	"github.com/1ureka/rtcsignal/internal/util"
)

var version = "dev"

const statsInterval = 5 * time.Second

// joinOptions are the inputs of the join subcommand.
type joinOptions struct {
	server         string
	room           string
	relayOnly      bool
	stun           string
	turn           string
	turnUser       string
	turnCredential string
}

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pterm.Info.Println(fmt.Sprintf("rtcsignal — v%s", version))
	pterm.Println()

	if len(os.Args) < 2 {
		runInteractive(ctx)
		return
	}

	switch os.Args[1] {
	case "serve":
		fs := flag.NewFlagSet("serve", flag.ExitOnError)
		addr := fs.String("addr", ":8080", "Listen address")
		publicHost := fs.String("public-host", "", "host[:port] clients should open the relay WebSocket on (default: the host they joined through)")
		tls := fs.Bool("tls", false, "Tell clients to use wss:// and https:// for the relay")
		debugMode := fs.Bool("debug", false, "Enable debug logging")
		fs.Parse(os.Args[2:])

		if *debugMode {
			util.EnableDebug()
		}
		runServe(ctx, *addr, relay.Options{RelayHost: *publicHost, RelayTLS: *tls})

	case "join":
		var opts joinOptions
		fs := flag.NewFlagSet("join", flag.ExitOnError)
		fs.StringVar(&opts.server, "server", "", "Room server URL (e.g. http://localhost:8080)")
		fs.StringVar(&opts.room, "room", "", "Room ID")
		fs.BoolVar(&opts.relayOnly, "relay-only", false, "Only use and advertise TURN relay candidates")
		fs.StringVar(&opts.stun, "stun", "", "STUN server host:port (default: Google STUN)")
		fs.StringVar(&opts.turn, "turn", "", "TURN server host:port")
		fs.StringVar(&opts.turnUser, "turn-user", "", "TURN username")
		fs.StringVar(&opts.turnCredential, "turn-credential", "", "TURN credential")
		debugMode := fs.Bool("debug", false, "Enable debug logging")
		fs.Parse(os.Args[2:])

		if *debugMode {
			util.EnableDebug()
		}
		if opts.room == "" {
			util.LogError("missing -room")
			os.Exit(1)
		}
		server, err := normalizeServerURL(opts.server)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		opts.server = server

		if err := runJoin(ctx, opts); err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}

	default:
		util.LogError("unknown command %q: must be 'serve' or 'join'", os.Args[1])
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

// runInteractive prompts for a mode and its inputs when no subcommand is
// given.
func runInteractive(ctx context.Context) {
	mode, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Serve — Run the relay and room server", "Join  — Join a room as a peer"}).
		WithDefaultText("Select a mode").
		Show()

	pterm.Println()

	if strings.HasPrefix(mode, "Serve") {
		addr, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Listen address").
			WithDefaultValue(":8080").
			Show()
		pterm.Println()
		runServe(ctx, strings.TrimSpace(addr), relay.Options{})
		return
	}

	opts := joinOptions{server: askServerURL(), room: askRoom()}
	opts.relayOnly, _ = pterm.DefaultInteractiveConfirm.
		WithDefaultText("Relay-only (TURN) candidates?").
		WithDefaultValue(false).
		Show()
	pterm.Println()

	if err := runJoin(ctx, opts); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// runServe runs the relay server until ctx is cancelled.
func runServe(ctx context.Context, addr string, opts relay.Options) {
	s := relay.NewServer(opts)
	if _, err := s.Start(addr); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	util.StartStatsReporter(ctx, statsInterval)

	<-ctx.Done()
	util.LogInfo("shutting down relay server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Close(shutdownCtx); err != nil {
		util.LogError("relay server forced to shut down: %v", err)
	}
	util.LogInfo("relay server exited")
}

// runJoin joins a room and negotiates until the peer hangs up or ctx is
// cancelled.
func runJoin(ctx context.Context, opts joinOptions) error {
	jr, err := relay.Join(ctx, &http.Client{Timeout: 10 * time.Second}, opts.server, opts.room)
	if err != nil {
		return err
	}

	cfg := config.Config{
		Session:       config.Session{RoomID: opts.room, ClientID: jr.ClientID},
		Messages:      jr.Messages,
		RelayHost:     jr.WSS,
		RelayTLS:      jr.WSSTLS,
		RoomServerURL: opts.server,
		ICEServers:    config.BuildICEServers(opts.stun, opts.turn, opts.turnUser, opts.turnCredential),
		ICETransports: config.ICETransportsAll,
	}
	if opts.relayOnly {
		cfg.ICETransports = config.ICETransportsRelay
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}

	bus := pubsub.New()
	logEvents(bus)

	m := signaling.New(cfg, bus)
	util.LogSuccess("joined room %s as %s", opts.room, m.Role())
	m.Start()
	util.StartStatsReporter(ctx, statsInterval)

	select {
	case <-ctx.Done():
		util.LogInfo("hanging up...")
	case <-m.Done():
	}
	m.Shutdown()
	util.LogInfo("session ended")
	return nil
}

// logEvents prints every publication of the signaling manager.
func logEvents(bus *pubsub.Bus) {
	bus.Subscribe(signaling.TopicICECandidate, func(p any) {
		ev := p.(signaling.CandidateEvent)
		dir := "remote"
		if ev.Local {
			dir = "local"
		}
		util.LogInfo("%s %s candidate: %s", dir, ev.Type, ev.Candidate)
	})
	bus.Subscribe(signaling.TopicICEState, func(p any) {
		util.LogInfo("ICE connection state: %v", p)
	})
	bus.Subscribe(signaling.TopicSignalingState, func(p any) {
		util.LogDebug("signaling state: %v", p)
	})
	bus.Subscribe(signaling.TopicSessionState, func(p any) {
		util.LogInfo("session %v", p)
	})
	bus.Subscribe(signaling.TopicRemoteStream, func(p any) {
		util.LogSuccess("remote stream: %+v", p)
	})
	bus.Subscribe(signaling.TopicRemoteStreamRemoved, func(p any) {
		util.LogInfo("remote stream ended: %+v", p)
	})
	bus.Subscribe(signaling.TopicRemoteVideoPending, func(any) {
		util.LogInfo("waiting for remote video...")
	})
	bus.Subscribe(signaling.TopicRemoteVideoNone, func(any) {
		util.LogInfo("remote side sends no video")
	})
	bus.Subscribe(signaling.TopicRemoteHangup, func(any) {
		util.LogWarning("remote peer hung up")
	})
	bus.Subscribe(signaling.TopicNegotiationFailure, func(p any) {
		util.LogWarning("negotiation step failed: %v", p.(signaling.NegotiationFailure).Err)
	})
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// normalizeServerURL validates a room server URL, defaulting to http://.
func normalizeServerURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid room server URL: %q", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// askServerURL prompts for a room server URL until a valid one is entered.
func askServerURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Room server URL (e.g. http://localhost:8080)").
			Show()

		server, err := normalizeServerURL(raw)
		if err == nil {
			pterm.Println()
			return server
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

// askRoom prompts for a non-empty room ID.
func askRoom() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Room ID").
			Show()

		if room := strings.TrimSpace(raw); room != "" {
			pterm.Println()
			return room
		}
		util.LogWarning("room ID must not be empty")
		pterm.Println()
	}
}
