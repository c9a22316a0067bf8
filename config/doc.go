// Package config loads the engine configuration from a YAML file.
//
// A configuration sets the run limits, the breakpoints, the log level and the
// checkpoint backend:
//
//	max_steps: 50
//	interrupt_after: [review]
//	log_level: debug
//	store:
//	  type: redis
//	  addr: localhost:6379
//	  ttl: 24h
//
// The document is validated against an embedded JSON schema before decoding, so
// unknown keys and missing backend settings are reported with ErrInvalid.
package config
