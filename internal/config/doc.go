// Package config handles configuration loading for coven-replybot.
//
// # Configuration File
//
// Default location (first match wins):
//
//  1. Path from the COVEN_REPLYBOT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/replybot.toml
//  3. ~/.config/coven/replybot.toml
//
// Files are TOML unless the path ends in .yaml or .yml.
//
// # Environment Variable Expansion
//
// Values can reference environment variables:
//
//	[llm]
//	api_key = "${OPENAI_API_KEY}"
//
// Unset variables expand to the empty string.
//
// # Durations
//
// Duration values use time.ParseDuration syntax:
//
//	[limits]
//	edit_delay = "1.3s"
//	sweep_quiet = "1m"
//
// # Example
//
//	[matrix]
//	homeserver = "https://matrix.example.org"
//	username = "replybot"
//	password = "${MATRIX_PASSWORD}"
//	allowed_rooms = ["!abc:example.org"]
//
//	[llm]
//	provider = "openai"
//	model = "gpt-4o"
//	system_prompt = "You are a helpful assistant."
//
//	[llm.settings]
//	temperature = 0.7
//
//	[limits]
//	max_messages = 20
//
//	[idle]
//	enabled = true
//	interval = "30m"
//	messages = ["anyone around?"]
package config
