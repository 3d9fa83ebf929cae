package config

import "errors"

var (
	ErrMissingGitHubSecret     = errors.New("github webhook secret is required")
	ErrMissingSlackSecret      = errors.New("slack signing secret is required")
	ErrMissingEncryptionSecret = errors.New("encryption secret is required")
	ErrNoServicesEnabled       = errors.New("at least one service must be enabled")
	ErrInvalidRetention        = errors.New("pipeline retention must not be negative")
)
