// Package main is the keeper CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/keeperhq/keeper/internal/chat"
	"github.com/keeperhq/keeper/internal/config"
	"github.com/keeperhq/keeper/internal/embedding"
	"github.com/keeperhq/keeper/internal/llm"
	"github.com/keeperhq/keeper/internal/memory"
	"github.com/keeperhq/keeper/internal/models"
	"github.com/keeperhq/keeper/internal/retrieval"
	"github.com/keeperhq/keeper/internal/server"
	"github.com/keeperhq/keeper/internal/watcher"
	"github.com/keeperhq/keeper/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/keeper/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "index":
		runIndex()
	case "ask":
		runAsk()
	case "narrate":
		runNarrate()
	case "summarize":
		runSummarize()
	case "story":
		runStory()
	case "sessions":
		runSessions()
	case "stats":
		runStats()
	case "clear":
		runClear()
	case "version", "--version", "-v":
		fmt.Printf("keeper version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// Components holds the wired application services. Retrieval and Assistant
// are nil when the corresponding API keys are not set; commands that need
// them check and fail with a pointed message instead of a panic.
type Components struct {
	Store      *memory.Store
	Summarizer *memory.Summarizer
	Composer   *memory.Composer
	Retrieval  *retrieval.Service
	Assistant  *chat.Assistant
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := memory.NewStore(cfg.Memory.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}
	summaryLog, err := memory.NewSummaryLog(cfg.Memory.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize summary log: %w", err)
	}
	archive, err := memory.NewStoryArchive(cfg.Memory.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize story archive: %w", err)
	}

	var chatGen, summaryGen, storyGen llm.TextGenerator
	if key := cfg.LLMAPIKey(); key != "" {
		chatGen, err = llm.NewClient(llm.ClientConfig{
			APIKey:      key,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.ChatTemperature,
			MaxTokens:   cfg.LLM.ChatMaxTokens,
		})
		if err != nil {
			return nil, err
		}
		summaryGen, err = llm.NewClient(llm.ClientConfig{
			APIKey:      key,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.SummaryTemperature,
			MaxTokens:   cfg.LLM.SummaryMaxTokens,
		})
		if err != nil {
			return nil, err
		}
		storyGen, err = llm.NewClient(llm.ClientConfig{
			APIKey:      key,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.StoryTemperature,
			MaxTokens:   cfg.LLM.StoryMaxTokens,
		})
		if err != nil {
			return nil, err
		}
	}

	summarizer := memory.NewSummarizer(store, summaryLog, summaryGen, logger)
	composer := memory.NewComposer(store, summaryLog, archive, summarizer, storyGen, cfg.Narrative.Style, logger)
	c := &Components{
		Store:      store,
		Summarizer: summarizer,
		Composer:   composer,
	}

	if key := cfg.EmbeddingAPIKey(); key != "" {
		embedder, err := embedding.NewClient(embedding.ClientConfig{
			APIKey:     key,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		c.Retrieval = retrieval.NewService(cfg.Retrieval, embedder, retrieval.WithLogger(logger))
		if chatGen != nil {
			c.Assistant = chat.NewAssistant(c.Retrieval, chatGen, store, summarizer, logger)
		}
	}
	return c, nil
}

// setup is the shared command prologue: load config, build logger, wire components.
func setup(configPath string) (*config.Config, *zap.Logger, *Components) {
	cfg, resolvedPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolvedPath))

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, components
}

func requireAssistant(cfg *config.Config, c *Components) *chat.Assistant {
	if c.Assistant == nil {
		fmt.Fprintf(os.Stderr, "API keys missing: set %s and %s (a .env file works too)\n",
			cfg.Embedding.APIKeyEnv, cfg.LLM.APIKeyEnv)
		os.Exit(1)
	}
	return c.Assistant
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath)
	defer logger.Sync()

	requireAssistant(cfg, components)

	ctx := context.Background()
	if err := components.Retrieval.Init(ctx); err != nil {
		logger.Fatal("Failed to initialize retrieval index", zap.Error(err))
	}

	var watchCancel context.CancelFunc
	if cfg.Watch.Enabled {
		svc := components.Retrieval
		w := watcher.NewWatcher(cfg.Retrieval.CorpusPath, func(path string) {
			logger.Info("corpus changed, rebuilding index", zap.String("path", path))
			if err := svc.Rebuild(context.Background()); err != nil {
				logger.Warn("corpus rebuild failed", zap.Error(err))
			}
		}, watcher.WithLogger(logger))
		var watchCtx context.Context
		watchCtx, watchCancel = context.WithCancel(ctx)
		if err := w.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start corpus watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(
		components.Assistant,
		components.Store,
		components.Summarizer,
		components.Composer,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchCancel != nil {
		watchCancel()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	force := fs.Bool("force", false, "delete existing artifacts and rebuild")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath)
	defer logger.Sync()

	if components.Retrieval == nil {
		fmt.Fprintf(os.Stderr, "API key missing: set %s\n", cfg.Embedding.APIKeyEnv)
		os.Exit(1)
	}

	ctx := context.Background()
	var err error
	if *force {
		err = components.Retrieval.Rebuild(ctx)
	} else {
		err = components.Retrieval.Init(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Index build failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Index ready: %d chunks\n", components.Retrieval.IndexSize())
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Fprintln(os.Stderr, "Usage: keeper ask [flags] <question>")
		os.Exit(1)
	}

	cfg, logger, components := setup(*configPath)
	defer logger.Sync()
	assistant := requireAssistant(cfg, components)

	ctx := context.Background()
	if err := components.Retrieval.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Index unavailable: %v\n", err)
		os.Exit(1)
	}
	answer, err := assistant.Ask(ctx, question)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(answer)
}

func runNarrate() {
	fs := flag.NewFlagSet("narrate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	script := fs.String("script", "", "scenario background")
	stage := fs.String("stage", "", "current stage of the scenario")
	_ = fs.Parse(os.Args[2:])

	action := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if action == "" {
		fmt.Fprintln(os.Stderr, "Usage: keeper narrate [flags] <player action>")
		os.Exit(1)
	}

	cfg, logger, components := setup(*configPath)
	defer logger.Sync()
	assistant := requireAssistant(cfg, components)

	ctx := context.Background()
	if err := components.Retrieval.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Index unavailable: %v\n", err)
		os.Exit(1)
	}
	narration, err := assistant.Narrate(ctx, *script, *stage, action)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Narrate failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(narration)
}

func runSummarize() {
	fs := flag.NewFlagSet("summarize", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	force := fs.Bool("force", false, "summarize even a short history")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath)
	defer logger.Sync()
	if cfg.LLMAPIKey() == "" {
		fmt.Fprintf(os.Stderr, "API key missing: set %s\n", cfg.LLM.APIKeyEnv)
		os.Exit(1)
	}

	summary, err := components.Summarizer.Trigger(context.Background(), *force)
	if err != nil {
		if memory.IsDeclined(err) {
			fmt.Printf("Nothing to summarize: %v\n", err)
			return
		}
		fmt.Fprintf(os.Stderr, "Summarize failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(summary.Summary)
}

func runStory() {
	fs := flag.NewFlagSet("story", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	session := fs.Bool("session", false, "compose from the current session only")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath)
	defer logger.Sync()
	if cfg.LLMAPIKey() == "" {
		fmt.Fprintf(os.Stderr, "API key missing: set %s\n", cfg.LLM.APIKeyEnv)
		os.Exit(1)
	}

	ctx := context.Background()
	var (
		story *models.Story
		err   error
	)
	if *session {
		story, err = components.Composer.GenerateSessionStory(ctx)
	} else {
		story, err = components.Composer.GenerateCompleteStory(ctx)
	}
	if err != nil {
		if memory.IsDeclined(err) {
			fmt.Printf("No story to compose: %v\n", err)
			return
		}
		fmt.Fprintf(os.Stderr, "Story composition failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(story.Story)
}

func runSessions() {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	_, logger, components := setup(*configPath)
	defer logger.Sync()

	infos, err := components.Store.AllSessionsInfo()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list sessions: %v\n", err)
		os.Exit(1)
	}
	if len(infos) == 0 {
		fmt.Println("No sessions recorded.")
		return
	}
	for _, info := range infos {
		marker := " "
		if info.IsCurrent {
			marker = "*"
		}
		fmt.Printf("%s %s  started %s  %d messages  %s\n",
			marker, info.SessionID, info.StartTime.Format("2006-01-02 15:04"),
			info.MessageCount, info.ScriptSummary)
	}
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	_, logger, components := setup(*configPath)
	defer logger.Sync()

	stats, err := components.Composer.Stats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to collect stats: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Current session:      %s\n", orNone(stats.CurrentSessionID))
	fmt.Printf("Session messages:     %d\n", stats.CurrentSessionMessages)
	fmt.Printf("Session summaries:    %d\n", stats.CurrentSessionSummaries)
	fmt.Printf("Total summaries:      %d\n", stats.TotalSummaries)
	fmt.Printf("Total stories:        %d\n", stats.TotalStories)
	fmt.Printf("Until next summary:   %d messages\n", stats.MessagesUntilNextSummary)
	if stats.LastSummaryTime != nil {
		fmt.Printf("Last summary:         %s\n", stats.LastSummaryTime.Format(time.RFC3339))
	}
	if stats.LastStoryTime != nil {
		fmt.Printf("Last story:           %s\n", stats.LastStoryTime.Format(time.RFC3339))
	}
}

func runClear() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	_ = fs.Parse(os.Args[2:])

	_, logger, components := setup(*configPath)
	defer logger.Sync()

	if !*yes {
		fmt.Print("This deletes all summaries and stories and closes the current session. Continue? [y/N] ")
		var answer string
		_, _ = fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}
	if err := components.Composer.ClearAll(); err != nil {
		fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Memory cleared.")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func printUsage() {
	fmt.Println(`keeper - RAG narration assistant for Call of Cthulhu keepers

Usage:
  keeper server [flags]              Start the HTTP server
  keeper index [flags]               Build the rules index (--force rebuilds)
  keeper ask [flags] <question>      Answer a rules question
  keeper narrate [flags] <action>    Narrate a player action
  keeper summarize [flags]           Summarize recent session messages (--force)
  keeper story [flags]               Compose the full story (--session for current session)
  keeper sessions [flags]            List recorded sessions
  keeper stats [flags]               Show memory statistics
  keeper clear [flags]               Delete summaries and stories (--yes skips confirmation)
  keeper version                     Show version
  keeper help                        Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/keeper/config.yaml,
                     falling back to ./config.yaml when present)

API keys are read from the environment variables named in the config
(embedding.api_key_env, llm.api_key_env); a .env file in the working
directory is loaded automatically.`)
}
