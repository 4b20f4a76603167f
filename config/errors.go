package config

import "errors"

var (
	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrMalformedConfig indicates the file is not valid YAML or has unknown fields.
	ErrMalformedConfig = errors.New("config: malformed configuration")

	// ErrInvalidListenAddr indicates the listen or metrics address is malformed.
	ErrInvalidListenAddr = errors.New("config: invalid listen address")

	// ErrNoLocations indicates no storage location was configured.
	ErrNoLocations = errors.New("config: at least one storage location is required")

	// ErrInvalidLocation indicates a storage location URI could not be parsed.
	ErrInvalidLocation = errors.New("config: invalid storage location")

	// ErrInvalidTimeout indicates a non-positive sync timeout.
	ErrInvalidTimeout = errors.New("config: sync timeout must be positive")

	// ErrInvalidSafe indicates a malformed safe entry.
	ErrInvalidSafe = errors.New("config: invalid safe")
)
