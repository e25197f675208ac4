// Package config handles loading and validating udon configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with UDON_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker passwords, InfluxDB tokens and the JWT secret should be set
//     via environment variables
//   - Without a JWT secret the HTTP API accepts unauthenticated requests,
//     so keep it bound to loopback in that case
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Odin.Binary)
package config
