// ABOUTME: Entry point for coven-replybot
// ABOUTME: Answers Matrix mentions with LLM replies built from the surrounding reply chain

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-replybot/internal/bot"
	"github.com/2389/coven-replybot/internal/chain"
	"github.com/2389/coven-replybot/internal/chat"
	"github.com/2389/coven-replybot/internal/config"
	"github.com/2389/coven-replybot/internal/content"
	"github.com/2389/coven-replybot/internal/dedupe"
	"github.com/2389/coven-replybot/internal/llm"
	"github.com/2389/coven-replybot/internal/matrix"
	"github.com/2389/coven-replybot/internal/nodes"
	"github.com/2389/coven-replybot/internal/publish"
)

const banner = `
                                                   _       _           _
  ___ _____   _____ _ __        _ __ ___ _ __ | |_   _| |__   ___ | |_
 / __/ _ \ \ / / _ \ '_ \ _____| '__/ _ \ '_ \| | | | | '_ \ / _ \| __|
| (_| (_) \ V /  __/ | | |_____| | |  __/ |_) | | |_| | |_) | (_) | |_
 \___\___/ \_/ \___|_| |_|     |_|  \___| .__/|_|\__, |_.__/ \___/ \__|
                                        |_|      |___/
`

// attachmentTimeout bounds a single plain-HTTP attachment download.
const attachmentTimeout = 30 * time.Second

func main() {
	flags := pflag.NewFlagSet("coven-replybot", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: coven-replybot [flags] [init]")
		flags.PrintDefaults()
	}
	configFlag := flags.StringP("config", "c", "", "config file (default $COVEN_REPLYBOT_CONFIG or ~/.config/coven/replybot.toml)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = config.DefaultPath()
	}

	cmd := run
	if flags.Arg(0) == "init" {
		cmd = runInit
	}
	if err := cmd(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	dataPath := config.DataDir()

	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging.Level)

	images := capability(cfg.LLM.SupportsImages, llm.SupportsImages, cfg.LLM.Model)
	names := capability(cfg.LLM.SupportsNames, llm.SupportsNames, cfg.LLM.Model)

	green := color.New(color.FgGreen)
	info := func(label, value string) {
		green.Print("    ▶ ")
		fmt.Printf("%-11s %s\n", label+":", value)
	}
	info("Config", configPath)
	info("Homeserver", cfg.Matrix.Homeserver)
	info("Username", cfg.Matrix.Username)
	info("Provider", cfg.LLM.Provider)
	info("Model", cfg.LLM.Model)
	info("Images", fmt.Sprint(images))
	if cfg.Matrix.RecoveryKey != "" {
		info("Encryption", "enabled")
	}
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := matrix.NewClient(cfg.Matrix.Homeserver)
	if err != nil {
		return err
	}
	if err := matrix.Login(ctx, client, cfg.Matrix.Username, cfg.Matrix.Password); err != nil {
		return fmt.Errorf("matrix login: %w", err)
	}

	if cfg.Matrix.RecoveryKey != "" {
		crypto, err := matrix.EnableCrypto(ctx, client, cfg.Matrix.RecoveryKey, dataPath, logger)
		if err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
		defer crypto.Close()
	} else {
		logger.Info("encryption disabled (no recovery key)")
	}

	provider, err := newProvider(ctx, cfg.LLM)
	if err != nil {
		return err
	}

	self := chat.Identity{
		UserID:  client.UserID.String(),
		Mention: mentionToken(cfg.Matrix.DisplayName, client.UserID),
	}

	store := nodes.NewStore()
	locks := nodes.NewKeyLocks()
	surface := matrix.NewSurface(client, content.NewHTTPFetcher(attachmentTimeout), logger)

	normalizer := content.New(surface, content.Limits{
		MaxText:   cfg.Limits.MaxText,
		MaxImages: cfg.Limits.MaxImages,
		Images:    images,
	}, self, logger)
	walker := chain.NewWalker(store, locks, normalizer, chain.NewResolver(surface, self), self, names, logger)
	invoker := llm.NewInvoker(provider, locks, llm.Options{
		Model:        cfg.LLM.Model,
		SystemPrompt: cfg.LLM.SystemPrompt,
		Names:        names,
		Settings:     llm.Settings(cfg.LLM.Settings),
		Timeout:      cfg.LLM.Timeout,
	}, logger)
	publisher := publish.New(surface, store, locks, self, publish.Options{
		ChunkSize: cfg.Limits.ChunkSize,
		EditDelay: cfg.Limits.EditDelay,
		Names:     names,
	}, logger)
	sweeper := nodes.NewSweeper(store, cfg.Limits.MaxNodes, cfg.Limits.SweepQuiet, logger)

	policy := bot.Policy{
		Self:         self,
		AllowedRooms: cfg.Matrix.AllowedRooms,
		AllowedUsers: cfg.Matrix.AllowedUsers,
		ReplyInDMs:   cfg.Matrix.ReplyInDMs,
	}
	handler := bot.NewHandler(bot.Deps{
		Policy:      policy,
		Walker:      walker,
		Completer:   invoker,
		Publisher:   publisher,
		Sweeper:     sweeper,
		Typing:      surface,
		MaxMessages: cfg.Limits.MaxMessages,
	}, logger)

	seen := dedupe.New(dedupe.DefaultTTL, dedupe.DefaultMaxSize)
	defer seen.Close()

	bridge := matrix.NewBridge(client, surface, handler, seen, matrix.Options{
		RoomAllowed: policy.RoomAllowed,
	}, logger)

	go sweeper.Run(ctx)
	if cfg.Idle.Enabled {
		go bot.NewIdle(surface, policy, cfg.Idle.Interval, cfg.Idle.Messages, logger).Run(ctx)
	}

	logger.Info("starting replybot", "user_id", self.UserID, "names", names, "images", images)
	return bridge.Run(ctx)
}

// newProvider builds the configured completion provider.
func newProvider(ctx context.Context, cfg config.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		p, err := llm.NewGemini(ctx, cfg.APIKey, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("creating gemini provider: %w", err)
		}
		return p, nil
	default:
		return llm.NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Timeout), nil
	}
}

// capability returns the configured override, or detects it from the model.
func capability(override *bool, detect func(string) bool, model string) bool {
	if override != nil {
		return *override
	}
	return detect(model)
}

// mentionToken is the text clients put in front of a message addressed to the
// bot, e.g. "Replybot:". It defaults to the account's localpart.
func mentionToken(displayName string, userID id.UserID) string {
	name := strings.TrimSpace(displayName)
	if name == "" {
		localpart, _, err := userID.Parse()
		if err != nil || localpart == "" {
			return ""
		}
		name = localpart
	}
	return name + ":"
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}
