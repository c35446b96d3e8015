// Package configs embeds the annotated configuration template written by
// `trialscope config init --template` and printed by `trialscope config example`.
//
// The template mirrors the defaults in internal/config NewConfig. A test in
// internal/config loads it strictly, so a renamed key fails the build's tests.
package configs

import _ "embed"

// Template is the annotated configuration file with every key at its
// default value.
//
//go:embed trialscope.example.yaml
var Template string
