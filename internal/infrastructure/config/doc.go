// Package config handles loading and validating rfidhub configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (RFIDHUB_SECTION_KEY)
//   - Validation of required fields
//   - Default value handling
//
// Credentials (MQTT password, InfluxDB token) should be set via environment
// variables rather than committed to the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Readers.SettingsFile)
package config
