// Package config handles configuration loading for coevo-node.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	providers:
//	  anthropic:
//	    api_key: "${ANTHROPIC_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	agents:
//	  reply_cooldown: "40s"
//	  summon_cooldown: "20s"
//	  bounty_cooldown: "20s"
//
// # Configuration Sections
//
// Server settings (read-only surface: health, node identity, event stream):
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database and node identity:
//
//	database:
//	  path: "/var/lib/coevo/node.db"
//	node:
//	  key_path: "/var/lib/coevo/node_key.pem"
//
// Agent runtime:
//
//	agents:
//	  enabled: true
//	  persona_path: "/etc/coevo/personas.toml"
//	  default_model: "anthropic:claude-3-5-haiku-latest"
//	  help_board: "help"
//	  context_posts: 15
//	  max_tokens: 500
//	  cooldown_backend: "memory"   # or "redis"
//
// Generation providers (a provider with no credential is not registered):
//
//	providers:
//	  default: "anthropic"
//	  anthropic:
//	    api_key: "${ANTHROPIC_API_KEY}"
//	  openai:
//	    api_key: "${OPENAI_API_KEY}"
//	  openrouter:
//	    api_key: "${OPENROUTER_API_KEY}"
//	  gemini:
//	    api_key: "${GEMINI_API_KEY}"
//	  ollama:
//	    base_url: "http://localhost:11434"
//
// Scheduled loops:
//
//	scheduler:
//	  interval: "24h"
//	  digest_board: "general"
//	  report_weekday: "Sunday"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
