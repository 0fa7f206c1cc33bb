// Package config provides configuration loading for the Phyn bridge.
//
// Configuration is layered: hardcoded defaults, then a YAML file, then
// environment variable overrides (PHYNBRIDGE_*). The loaded Config is
// validated before use so the rest of the application can assume a
// well-formed configuration.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Security
//
// The account bearer token and the telemetry token are secrets. Keep them
// out of the YAML file where possible and supply them via the
// PHYNBRIDGE_ACCOUNT_TOKEN and PHYNBRIDGE_TELEMETRY_TOKEN environment
// variables.
package config
