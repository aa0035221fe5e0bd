// Package config handles loading and validating the CEC service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with GRAYLOGIC_* environment variables
//   - Validation of required fields, collecting every error
//   - Default value handling
//
// The cec section describes the unit: its adapter connection, its physical
// address and the logical devices it hosts. Durations use Go syntax ("2s").
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.CEC.Devices)
package config
