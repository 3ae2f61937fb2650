// Package config loads, defaults, validates, and watches the modelgate
// configuration.
//
// Configuration is a YAML file with environment variable overrides following
// the MODELGATE_SECTION_FIELD naming convention. The loading sequence is:
//
//  1. Parse YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate the final configuration
//
// A Watcher can reload the file on change (fsnotify); the gateway applies
// reloaded breaker tuning when its breakers are next reset.
package config
