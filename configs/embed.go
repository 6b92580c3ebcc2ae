// Package configs provides the embedded configuration template for shardex.
//
// The template is written by `shardex init` as .shardex.yaml in the current
// directory. Values it leaves commented out fall back to the defaults in
// internal/config NewConfig().
//
// Configuration precedence (see internal/config Load()):
//  1. Hardcoded defaults
//  2. Project config (.shardex.yaml)
//  3. Environment variables (SHARDEX_*)
package configs

import _ "embed"

// ProjectConfigTemplate is the template for .shardex.yaml.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
