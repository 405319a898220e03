// Package config handles configuration loading for imagegen.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by a .toml
// extension) with environment variable expansion, layered over defaults and
// validated with gookit/validate struct tags.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from IMAGEGEN_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/imagegen/config.yaml
//  3. ~/.config/imagegen/config.yaml
//
// A missing file is not an error: defaults apply and the API key is read from
// OPENAI_API_KEY.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	service:
//	  api_key: "${OPENAI_API_KEY}"
//
// # Configuration Sections
//
// Image service:
//
//	service:
//	  base_url: "https://api.openai.com/v1"
//	  api_key: "${OPENAI_API_KEY}"
//	  organization: ""
//	  model: "dall-e-2"
//	  size: "1024x1024"
//	  timeout: "2m"
//
// Gallery database:
//
//	database:
//	  path: "~/.local/share/imagegen/gallery.db"
//
// Thumbnail cache:
//
//	cache:
//	  enabled: true
//	  size_mb: 128
//	  thumbnail_px: 128
//	  ttl: "1h"         # 0 keeps thumbnails until evicted
//
// Variations:
//
//	variation:
//	  accept_policy: "create"   # create, replace
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Metrics:
//
//	metrics:
//	  enabled: false
//	  textfile: "/var/lib/node_exporter/imagegen.prom"
//
// # Usage
//
//	cfg, found, err := config.LoadOrDefault(path, dataDir)
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
