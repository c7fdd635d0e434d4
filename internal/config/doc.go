// Package config handles configuration loading for flow-bridge.
//
// Configuration is loaded from a YAML file with ${VAR_NAME} environment
// variable expansion and Go duration-string parsing:
//
//	slack:
//	  app_token: "${SLACK_APP_TOKEN}"
//	  bot_token: "${SLACK_BOT_TOKEN}"
//	database:
//	  path: "/var/lib/flow-bridge/bridge.db"
//	agent:
//	  request_timeout: "5m"
//	  response_paths: []
//	sessions:
//	  ttl: "24h"
//	  sweep_interval: "15m"
//	admin:
//	  user_ids: ["U0123ADMIN"]
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	metrics:
//	  enabled: true
//	  addr: "127.0.0.1:9090"
package config
