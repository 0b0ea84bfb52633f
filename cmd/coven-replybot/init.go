// ABOUTME: Interactive init subcommand for coven-replybot
// ABOUTME: Prompts for account and provider details and writes a starter TOML config

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/coven-replybot/internal/config"
)

// initAnswers are the values gathered by the init wizard.
type initAnswers struct {
	Homeserver   string
	Username     string
	Password     string
	RecoveryKey  string
	Provider     string
	Model        string
	BaseURL      string
	APIKey       string
	SystemPrompt string
	AllowedRooms []string
}

func runInit(configPath string) error {
	if ext := strings.ToLower(filepath.Ext(configPath)); ext == ".yaml" || ext == ".yml" {
		return fmt.Errorf("init writes TOML, choose a .toml path instead of %s", configPath)
	}

	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)

	cyan.Print(banner)
	fmt.Println("    Interactive Setup")
	fmt.Println("    -----------------")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	if _, err := os.Stat(configPath); err == nil {
		yellow.Printf("    Config already exists at %s\n", configPath)
		if !strings.EqualFold(prompt(reader, os.Stdout, "Overwrite? [y/N]", "n"), "y") {
			fmt.Println("    Aborted.")
			return nil
		}
		fmt.Println()
	}

	a := askInit(reader, os.Stdout)

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(renderConfig(a)), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Println()
	green.Printf("    ✓ Config written to %s\n", configPath)
	fmt.Println()
	fmt.Println("    Next steps:")
	fmt.Println("    1. Invite the bot account to a room")
	fmt.Println("    2. Run: coven-replybot")
	fmt.Println()
	return nil
}

// askInit prompts for every answer, applying defaults for blank input.
func askInit(in *bufio.Reader, out io.Writer) initAnswers {
	a := initAnswers{
		Homeserver:  prompt(in, out, "Matrix homeserver URL [https://matrix.org]", "https://matrix.org"),
		Username:    prompt(in, out, "Matrix username", ""),
		Password:    prompt(in, out, "Matrix password", ""),
		RecoveryKey: prompt(in, out, "Matrix recovery key (optional, for E2EE)", ""),
		Provider:    prompt(in, out, "LLM provider, openai or gemini [openai]", config.ProviderOpenAI),
	}

	defaultModel := config.DefaultModel
	if a.Provider == config.ProviderGemini {
		defaultModel = "gemini-2.0-flash"
	}
	a.Model = prompt(in, out, fmt.Sprintf("Model [%s]", defaultModel), defaultModel)
	if a.Provider != config.ProviderGemini {
		a.BaseURL = prompt(in, out, "API base URL (blank for api.openai.com)", "")
	}
	a.APIKey = prompt(in, out, "API key (or ${ENV_VAR})", "")
	a.SystemPrompt = prompt(in, out, "System prompt [You are a helpful assistant.]", "You are a helpful assistant.")

	for _, room := range strings.Split(prompt(in, out, "Allowed room IDs, comma separated (blank = all)", ""), ",") {
		if room = strings.TrimSpace(room); room != "" {
			a.AllowedRooms = append(a.AllowedRooms, room)
		}
	}
	return a
}

// prompt prints label and reads one line, returning def when it is blank.
func prompt(in *bufio.Reader, out io.Writer, label, def string) string {
	fmt.Fprint(out, color.GreenString("    ▶ "), label, ": ")
	line, _ := in.ReadString('\n')
	if line = strings.TrimSpace(line); line != "" {
		return line
	}
	return def
}

// renderConfig produces the starter TOML file.
func renderConfig(a initAnswers) string {
	var b strings.Builder
	b.WriteString("# coven-replybot configuration\n# Generated by coven-replybot init\n\n")

	b.WriteString("[matrix]\n")
	fmt.Fprintf(&b, "homeserver = %s\n", strconv.Quote(a.Homeserver))
	fmt.Fprintf(&b, "username = %s\n", strconv.Quote(a.Username))
	fmt.Fprintf(&b, "password = %s\n", strconv.Quote(a.Password))
	if a.RecoveryKey != "" {
		fmt.Fprintf(&b, "recovery_key = %s\n", strconv.Quote(a.RecoveryKey))
	}
	b.WriteString("# Only respond in these rooms (empty = every joined room)\n")
	fmt.Fprintf(&b, "allowed_rooms = %s\n", quoteList(a.AllowedRooms))
	b.WriteString("# Only respond to these users (empty = everyone)\nallowed_users = []\n")
	b.WriteString("reply_in_dms = true\n\n")

	b.WriteString("[llm]\n")
	fmt.Fprintf(&b, "provider = %s\n", strconv.Quote(a.Provider))
	fmt.Fprintf(&b, "model = %s\n", strconv.Quote(a.Model))
	if a.BaseURL != "" {
		fmt.Fprintf(&b, "base_url = %s\n", strconv.Quote(a.BaseURL))
	}
	if a.APIKey != "" {
		fmt.Fprintf(&b, "api_key = %s\n", strconv.Quote(a.APIKey))
	}
	fmt.Fprintf(&b, "system_prompt = %s\n\n", strconv.Quote(a.SystemPrompt))

	fmt.Fprintf(&b, "[limits]\nmax_messages = %d\nmax_text = %d\nmax_images = %d\n\n",
		config.DefaultMaxMessages, config.DefaultMaxText, config.DefaultMaxImages)

	b.WriteString("[idle]\nenabled = false\ninterval = \"30m\"\n\n")
	b.WriteString("[logging]\nlevel = \"info\"\n")
	return b.String()
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = strconv.Quote(s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
