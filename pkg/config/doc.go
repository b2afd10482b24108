// Package config loads and validates the Atrium service configuration.
//
// Configuration is read from a YAML file, then overridden by ATRIUM_*
// environment variables, then validated. A watcher can reload the log level
// at runtime when the file changes.
//
//	cfg, err := config.Load("atrium.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Environment overrides use the ATRIUM_ prefix with underscore-separated
// section paths, for example ATRIUM_SERVER_LISTEN_ADDRESS or
// ATRIUM_LOGGING_LEVEL.
package config
