// Package config handles configuration loading for filedesk.
//
// # Overview
//
// Configuration is loaded from a YAML file (or TOML, when the file name ends
// in .toml) with environment variable expansion, defaults and validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from FILEDESK_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/filedesk/config.yaml
//  3. ~/.config/filedesk/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	assistant:
//	  api_key: "${OPENAI_API_KEY}"
//
// Unset variables expand to an empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"     # empty disables the HTTP API
//
//	assistant:
//	  base_url: "https://api.openai.com/v1"
//	  api_key: "${OPENAI_API_KEY}"
//	  assistant_id: "asst_..."
//	  api_version: "assistants=v2"
//	  request_timeout: "60s"
//	  max_retries: 3
//
//	conversation:
//	  rollover_threshold: 20
//	  poll_interval: "2s"
//	  poll_timeout: "120s"
//	  search_instruction: ""
//
//	session:
//	  backend: "redis"                 # redis, sqlite, memory
//	  redis:
//	    addr: "localhost:6379"
//	    key_prefix: "filedesk"
//	    lock_ttl: "5m"
//	  sqlite:
//	    path: "/var/lib/filedesk/sessions.db"
//
//	files:
//	  dir: "/srv/filedesk/files"
//	  work_dir: "/tmp"
//	  size_limit_mb: 50
//
//	frontends:
//	  telegram:
//	    enabled: true
//	    token: "${TELEGRAM_TOKEN}"
//	  matrix:
//	    enabled: false
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
