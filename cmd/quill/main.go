package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quill-agent/quill/agent"
	"github.com/quill-agent/quill/agent/terminal"
	"github.com/quill-agent/quill/config"
	"github.com/quill-agent/quill/gateway"
	"github.com/quill-agent/quill/llm"
	"github.com/quill-agent/quill/policy"
	"github.com/quill-agent/quill/session"
)

func main() {
	modeFlag := flag.String("m", "", "Execution mode: 'auto' or 'prompt'")
	sessionFlag := flag.String("s", "", "Session name to create or use")
	toolsetFlag := flag.String("t", "", "Toolset to use (defaults to 'default')")
	resumeFlag := flag.String("r", "", "Resume a session by name")
	toolVerbosityFlag := flag.String("tool-verbosity", "", "Tool verbosity level: 'none', 'info', or 'all'")
	logLevelFlag := flag.String("log-level", "warn", "Log level: 'debug', 'info', 'warn', or 'error'")
	flag.Parse()

	logger, err := newLogger(*logLevelFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}

	workspaceRoot, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving working directory: %+v\n", err)
		os.Exit(1)
	}
	pol, err := policy.Compile(cfg.PolicyConfig(workspaceRoot))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error compiling capability policy: %+v\n", err)
		os.Exit(1)
	}

	gw := gateway.New(pol, gateway.Capabilities{
		WebSearch: cfg.Capabilities.WebSearch,
		Repo:      cfg.Capabilities.Repo,
	}, logger)
	// A capability without its credential is disabled, not fatal.
	for _, capErr := range gw.CapabilityErrors() {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", capErr)
	}

	var sess *session.Session
	sessionName := *sessionFlag

	if *resumeFlag != "" {
		sessionName = *resumeFlag
		sess, err = session.Load(sessionName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resuming session '%s': %+v\n", sessionName, err)
			os.Exit(1)
		}
		fmt.Printf("Resuming session: %s\n", sessionName)
		// Flags the user did not pass fall back to what the session used.
		if *modeFlag == "" && sess.Mode != "" {
			*modeFlag = sess.Mode
		}
		if *toolsetFlag == "" && sess.Toolset != "" {
			*toolsetFlag = sess.Toolset
		}
		if *toolVerbosityFlag == "" && sess.ToolVerbosity != "" {
			*toolVerbosityFlag = sess.ToolVerbosity
		}
	} else {
		if sessionName == "" {
			sessionName = defaultSessionName()
		}
		sess, err = session.New(sessionName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating session '%s': %+v\n", sessionName, err)
			os.Exit(1)
		}
		fmt.Printf("Starting new session: %s\n", sessionName)
	}

	if *modeFlag == "" {
		*modeFlag = "prompt"
	}
	if *toolsetFlag == "" {
		*toolsetFlag = "default"
	}
	if *toolVerbosityFlag == "" {
		*toolVerbosityFlag = "none"
	}

	sess.Mode = *modeFlag
	sess.Toolset = *toolsetFlag
	sess.ToolVerbosity = *toolVerbosityFlag
	if err := sess.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving session '%s': %+v\n", sessionName, err)
		os.Exit(1)
	}

	var opMode agent.Mode
	switch *modeFlag {
	case "auto":
		opMode = agent.ModeAuto
	case "prompt":
		opMode = agent.ModePrompt
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode '%s'. Must be 'auto' or 'prompt'.\n", *modeFlag)
		os.Exit(1)
	}

	var verbosity agent.ToolVerbosity
	switch *toolVerbosityFlag {
	case "none":
		verbosity = agent.ToolVerbosityNone
	case "info":
		verbosity = agent.ToolVerbosityInfo
	case "all":
		verbosity = agent.ToolVerbosityAll
	default:
		fmt.Fprintf(os.Stderr, "Invalid tool verbosity '%s'. Must be 'none', 'info', or 'all'.\n", *toolVerbosityFlag)
		os.Exit(1)
	}

	ctx := context.Background()
	client, err := newLLMClient(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing %s client: %+v\n", cfg.LLMClient, err)
		os.Exit(1)
	}

	quillAgent, err := agent.New(ctx, cfg, sess, *toolsetFlag, opMode, client, verbosity, gw, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing agent: %+v\n", err)
		os.Exit(1)
	}
	defer quillAgent.Close()

	initialPrompt := strings.Join(flag.Args(), " ")

	fmt.Println("Quill is ready. Type your prompt.")
	term := terminal.New(quillAgent)
	if err := term.Run(ctx, initialPrompt); err != nil {
		fmt.Fprintf(os.Stderr, "Agent stopped with an error: %+v\n", err)
		os.Exit(1)
	}
}

func newLLMClient(ctx context.Context, cfg *config.Config) (llm.LLMClient, error) {
	switch cfg.LLMClient {
	case "gemini":
		return llm.NewGeminiLLMClient(ctx, cfg.Model)
	case "openai":
		return llm.NewOpenAILLMClient(ctx, cfg.Model)
	case "bedrock":
		return llm.NewBedrockLLMClient(ctx, cfg.Model)
	case "anthropic":
		return llm.NewAnthropicLLMClient(ctx, cfg.Model)
	default:
		return &llm.MockLLMClient{}, nil
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level '%s'. Must be 'debug', 'info', 'warn', or 'error'", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})), nil
}

func defaultSessionName() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "quill"
	}
	dirName := filepath.Base(wd)
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return fmt.Sprintf("%s_%s", dirName, timestamp)
}
