// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and validation for docchat.
//
// Supports TOML, JSON and YAML configuration files, with defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - BackendConfig: Remote chat service address, timeout and rate limit
//   - UploadConfig: OCR polling budget and upload limits
//   - SpeechConfig: Recognition and synthesis hosts
//   - ValidationError: A single out-of-range field
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (DOCCHAT_*)
//   - ~/.docchat/config.toml
//   - ~/.docchat/config.json
//   - ~/.docchat/config.yaml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := backend.NewClientWithConfig(&backend.ClientConfig{
//	    BaseURL: cfg.Backend.BaseURL,
//	    Timeout: cfg.Backend.Timeout(),
//	})
package config
