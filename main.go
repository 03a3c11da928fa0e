package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tether/internal/engine"
	"tether/internal/protocol"
	"tether/internal/styles"
	"tether/internal/transcript"
	"tether/internal/transport"
	"tether/internal/ui"
)

var (
	flagServer       string
	flagWorkspace    string
	flagTranscript   string
	flagPingInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "tether",
	Short: "Terminal client for a remote agent server",
	Long: `Tether connects to an agent server over a websocket, streams the
agent's conversation and tool activity into a chat transcript, and mirrors
web, code, and terminal actions in a side panel.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagServer, "server", "ws://localhost:8000/ws", "agent server websocket URL")
	rootCmd.Flags().StringVar(&flagWorkspace, "workspace", "", "local path mirroring the server workspace")
	rootCmd.Flags().StringVar(&flagTranscript, "transcript", "", "record raw protocol traffic to this sqlite file")
	rootCmd.Flags().DurationVar(&flagPingInterval, "ping-interval", 30*time.Second, "keepalive ping interval (0 disables)")
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	styles.InitTheme()

	var recorder *transcript.Recorder
	if flagTranscript != "" {
		var err error
		recorder, err = transcript.Open(flagTranscript)
		if err != nil {
			return fmt.Errorf("open transcript: %w", err)
		}
		defer recorder.Close()
		_ = recorder.SetServerURL(flagServer)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, err := transport.Dial(dialCtx, flagServer, transport.Options{PingInterval: pingOption()})
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	log := engine.NewConversationLog()
	session := engine.NewSession()
	if flagWorkspace != "" {
		session.SetWorkspaceRoot(flagWorkspace)
	}

	panels := ui.NewPanelState()
	router := engine.NewActionRouter(session, panels, engine.DefaultDebounceWindow)
	defer router.Stop()

	dispatcher := engine.NewDispatcher(log, session, router, stderrLogger{}, engine.DefaultReshowDelay)
	defer dispatcher.Close()

	coordinator := engine.NewUploadCoordinator(log, session)

	p := ui.NewProgram(ui.Deps{
		Dispatcher:  dispatcher,
		Coordinator: coordinator,
		Conn:        conn,
		Recorder:    recorder,
		Panels:      panels,
	})

	// The single consumer of the frame channel. Event order on this
	// goroutine is the order the server sent.
	go func() {
		for frame := range conn.Frames() {
			eventType := ""
			if env, err := protocol.ParseEnvelope(frame); err == nil {
				eventType = string(env.Type)
			}
			_ = recorder.Record(transcript.Inbound, eventType, frame)
			dispatcher.HandleRaw(frame)
		}
		p.Send(ui.ConnClosedMsg{Err: conn.Err()})
	}()

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	// Ask for the workspace root up front so file paths resolve.
	if err := conn.Send(protocol.WorkspaceInfoRequest()); err != nil {
		return err
	}

	_, err = p.Run()
	return err
}

func pingOption() time.Duration {
	if flagPingInterval <= 0 {
		return -1
	}
	return flagPingInterval
}

// stderrLogger surfaces dropped-event diagnostics without disturbing the
// alt screen; bubbletea restores stderr output on exit.
type stderrLogger struct{}

func (stderrLogger) Logf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
