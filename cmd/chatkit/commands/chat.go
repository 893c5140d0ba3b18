package commands

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/cropwise/chatkit/pkg/action"
	"github.com/cropwise/chatkit/pkg/chat"
	"github.com/cropwise/chatkit/pkg/store"
	"github.com/cropwise/chatkit/pkg/voice"
	"github.com/cropwise/chatkit/pkg/widget"
)

var (
	flagConfig   string
	flagProxy    string
	flagAPIKey   string
	flagProvider string
	flagModel    string
	flagDataDir  string
	flagVerbose  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session against the configured endpoint.

Replies stream to the terminal as they arrive. Actions extracted from
replies are routed through the action queue and printed. The conversation
persists under the data directory and restores on the next run.

Example:
  chatkit chat --config chatkit.yaml
  chatkit chat --proxy https://host.example/api/chat --data-dir ~/.chatkit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&flagConfig, "config", "", "YAML configuration file")
	chatCmd.Flags().StringVar(&flagProxy, "proxy", "", "Proxy endpoint base URL")
	chatCmd.Flags().StringVar(&flagAPIKey, "api-key", "", "Provider API key (direct mode)")
	chatCmd.Flags().StringVar(&flagProvider, "provider", "", "Provider for direct mode (openai, gemini)")
	chatCmd.Flags().StringVar(&flagModel, "model", "", "Model name")
	chatCmd.Flags().StringVar(&flagDataDir, "data-dir", "", "Directory for persisted state")
	chatCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging")
}

// Terminal styles, matching the project accent palette.
var (
	styleUser      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	styleAssistant = lipgloss.NewStyle().Foreground(lipgloss.Color("#e6edf3"))
	styleAction    = lipgloss.NewStyle().Foreground(lipgloss.Color("#d2a8ff"))
	styleErr       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff6b6b"))
	styleDim       = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
)

func runChat(cmd *cobra.Command, args []string) error {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	fc, err := LoadConfig(flagConfig)
	if err != nil {
		return err
	}
	if flagProxy != "" {
		fc.ProxyURL = flagProxy
	}
	if flagAPIKey != "" {
		fc.APIKey = flagAPIKey
	}
	if flagProvider != "" {
		fc.Provider = flagProvider
	}
	if flagModel != "" {
		fc.Model = flagModel
	}
	if flagDataDir != "" {
		fc.DataDir = flagDataDir
	}

	var backend store.Backend
	if fc.DataDir != "" {
		b, err := store.NewBadger(store.BadgerOptions{Dir: fc.DataDir})
		if err != nil {
			return fmt.Errorf("open data dir %s: %w", fc.DataDir, err)
		}
		backend = b
	}

	w, err := widget.New(widget.Config{
		Chat: chat.Config{
			APIURL:       fc.ProxyURL,
			APIKey:       fc.APIKey,
			Provider:     fc.Provider,
			Model:        fc.Model,
			Temperature:  fc.Temperature,
			MaxTokens:    fc.MaxTokens,
			SystemPrompt: fc.SystemPrompt,
			Instructions: fc.Instructions,
		},
		Voice: voice.Config{
			Enabled:         fc.Voice.Enabled,
			SignalURL:       fc.Voice.SignalURL,
			Token:           fc.Voice.Token,
			TokenEndpoint:   fc.Voice.TokenEndpoint,
			RoomName:        fc.Voice.RoomName,
			ParticipantName: fc.Voice.ParticipantName,
		},
		Backend:     backend,
		MaxMessages: fc.MaxMessages,
		Theme:       fc.Theme,
		Callbacks: widget.Callbacks{
			OnAction: func(a action.Action) {
				fmt.Println(styleAction.Render(fmt.Sprintf("⚡ action: %s (%s)", a.Type, a.Priority)))
			},
		},
	})
	if err != nil {
		return err
	}
	defer w.Close()

	// Mirror streamed deltas to the terminal: print whatever the in-flight
	// assistant message gained since the last snapshot.
	printed := 0
	unsub := w.Subscribe(func(s widget.State) {
		if !s.IsStreaming || len(s.Messages) == 0 {
			return
		}
		last := s.Messages[len(s.Messages)-1]
		if last.Role != store.RoleAssistant {
			return
		}
		if len(last.Content) > printed {
			fmt.Print(styleAssistant.Render(last.Content[printed:]))
			printed = len(last.Content)
		}
	})
	defer unsub()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	for _, m := range w.State().Messages {
		prefix := styleDim.Render("· ")
		if m.Role == store.RoleUser {
			prefix = styleUser.Render("you ")
		}
		fmt.Println(prefix + m.Content)
	}

	fmt.Println(styleDim.Render("chatkit ready - type a message, /quit to exit"))
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(styleUser.Render("you> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}
		printed = 0
		if err := w.SendMessage(ctx, line); err != nil {
			fmt.Println(styleErr.Render("error: " + err.Error()))
			continue
		}
		fmt.Println()
	}
	return scanner.Err()
}
