// Package main implements the OpenClaw Console entry point. This file
// handles command-line argument parsing, dependency injection, and wiring
// between the gateway connection engine, the chat session, and the terminal
// interface.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/openclaw/console/internal/auth"
	"github.com/openclaw/console/internal/chat"
	"github.com/openclaw/console/internal/config"
	"github.com/openclaw/console/internal/gateway"
	"github.com/openclaw/console/internal/interfaces"
	"github.com/openclaw/console/internal/logging"
	"github.com/openclaw/console/internal/protocol"
	"github.com/openclaw/console/internal/ui/chatui"
)

// Application metadata
const (
	Version     = "1.0.0"
	ProgramName = "OpenClaw Console"
)

// CommandLineArgs represents parsed command-line arguments
type CommandLineArgs struct {
	Gateway     string
	Profile     string
	Session     string
	Token       string
	Theme       string
	ShowHelp    bool
	ShowVersion bool
}

func main() {
	args := parseCommandLineArgs()

	if handleEarlyExitConditions(args) {
		return
	}

	logger := initializeLogging(args)

	if err := validateArguments(args); err != nil {
		logger.Error("Invalid arguments", "error", err.Error())
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		flag.Usage()
		os.Exit(1)
	}

	if err := run(args, logger); err != nil {
		logger.Error("Application terminated with error", "error", err.Error())
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Application shutdown completed")
}

// parseCommandLineArgs processes command-line arguments
func parseCommandLineArgs() CommandLineArgs {
	var args CommandLineArgs

	flag.StringVar(&args.Gateway, "gateway", "", "Gateway WebSocket URL (e.g. ws://127.0.0.1:18789)")
	flag.StringVar(&args.Profile, "profile", "default", "Profile name from the configuration file")
	flag.StringVar(&args.Session, "session", "", "Gateway session key to bind to")
	flag.StringVar(&args.Token, "token", "", "Gateway auth token (saved to the profile)")
	flag.StringVar(&args.Theme, "theme", "", "Color theme name")
	flag.BoolVar(&args.ShowHelp, "help", false, "Display usage information and exit")
	flag.BoolVar(&args.ShowVersion, "version", false, "Display version information and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "%s v%s\n\n", ProgramName, Version)
		fmt.Fprintf(os.Stderr, "A terminal chat interface for the OpenClaw gateway.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                  # Connect with the default profile\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --gateway ws://10.0.0.5:18789    # Override the gateway address\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --profile lab --session webchat  # Use the 'lab' profile\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nConfiguration file location: ~/.config/clawconsole/profiles.yaml\n")
	}

	flag.Parse()
	return args
}

// handleEarlyExitConditions processes help and version flags that cause immediate exit
func handleEarlyExitConditions(args CommandLineArgs) bool {
	if args.ShowHelp {
		flag.Usage()
		return true
	}

	if args.ShowVersion {
		fmt.Printf("%s v%s\n", ProgramName, Version)
		fmt.Printf("Gateway protocol version: %d\n", protocol.ProtocolVersion)
		return true
	}

	return false
}

// initializeLogging sets up the logging system based on environment and arguments
func initializeLogging(args CommandLineArgs) *logging.Logger {
	logConfig := logging.DefaultConfig()
	logConfig.Level = logging.InfoLevel

	if os.Getenv("CLAWCONSOLE_DEBUG") == "true" {
		logConfig.Level = logging.DebugLevel
		logConfig.Format = "json"
	}

	if err := logging.InitGlobalLogger(logConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	logger := logging.GetGlobalLogger()
	logger.Info("OpenClaw Console starting",
		"version", Version,
		"profile", args.Profile)

	return logger
}

// validateArguments ensures command-line arguments are valid
func validateArguments(args CommandLineArgs) error {
	if args.Gateway != "" {
		if !strings.HasPrefix(args.Gateway, "ws://") && !strings.HasPrefix(args.Gateway, "wss://") {
			return fmt.Errorf("gateway URL must use ws:// or wss://")
		}
	}
	return nil
}

// run wires the components together and drives the terminal interface
func run(args CommandLineArgs, logger *logging.Logger) error {
	configManager, err := config.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	authManager := auth.NewManager()

	profile, err := resolveProfile(args, configManager, authManager)
	if err != nil {
		return err
	}

	theme, err := configManager.LoadTheme(profile.Theme)
	if err != nil {
		logger.Warn("Theme not found, using claw", "theme", profile.Theme)
		if theme, err = configManager.LoadTheme("claw"); err != nil {
			return fmt.Errorf("failed to load fallback theme: %w", err)
		}
	}

	client := gateway.NewClient(gateway.Config{
		URL:           profile.GatewayURL,
		Token:         profile.Token,
		ClientVersion: Version,
	}, logging.GetGatewayLogger())

	session := chat.NewSession(client, profile.SessionKey, logging.GetChatLogger())
	client.Handle(protocol.EventChat, session.HandleEvent)

	model := chatui.NewModel(client, session, profile, theme)
	program := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	// Hooks fire on the engine's goroutines; forward them into the program.
	session.OnChange(func() {
		program.Send(chatui.SessionChangedMsg{})
	})
	client.OnStateChange(func(state interfaces.ConnectionState) {
		if state == interfaces.StateConnected {
			session.HandleConnected()
		}
		program.Send(chatui.ConnStateMsg{State: state})
	})
	client.OnNotice(func(text string) {
		program.Send(chatui.NoticeMsg{Text: text})
	})

	if err := client.Connect(); err != nil {
		// Surfaced in the UI as a notice; the program still runs so the
		// user can see what went wrong.
		logger.Warn("Initial connect failed", "error", err.Error())
	}

	logger.Info("Starting TUI", "gateway", profile.GatewayURL,
		"session", profile.SessionKey, "token", authManager.Redact(profile.Token))

	_, err = program.Run()
	closeErr := client.Close()
	if err != nil {
		return err
	}
	return closeErr
}

// resolveProfile loads the profile and applies command-line overrides.
// Overrides that change the connection settings are persisted so the next
// launch reuses them.
func resolveProfile(args CommandLineArgs, configManager interfaces.ConfigManager, authManager interfaces.AuthManager) (*interfaces.Profile, error) {
	profile, err := configManager.LoadProfile(args.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile '%s': %w", args.Profile, err)
	}

	dirty := false
	if args.Gateway != "" && args.Gateway != profile.GatewayURL {
		profile.GatewayURL = args.Gateway
		dirty = true
	}
	if args.Session != "" && args.Session != profile.SessionKey {
		profile.SessionKey = args.Session
		dirty = true
	}
	if args.Token != "" && args.Token != profile.Token {
		if err := authManager.ValidateToken(args.Token); err != nil {
			return nil, err
		}
		profile.Token = args.Token
		dirty = true
	}
	if args.Theme != "" {
		profile.Theme = args.Theme
	}

	if dirty {
		if err := configManager.SaveProfile(profile); err != nil {
			return nil, fmt.Errorf("failed to save profile '%s': %w", profile.Name, err)
		}
	}

	return profile, nil
}
