// Package providers holds the thin clients for the external services the
// catalog is built from. Each adapter owns a fetch.Client paced for that
// service and returns normalized records regardless of the wire format.
package providers

import (
	"errors"
	"time"

	"gamehub/internal/fetch"
	"gamehub/pkg/apperr"
	"gamehub/pkg/logger"
)

// Minimum spacing between calls, per provider.
const (
	SteamPacing       = 1500 * time.Millisecond
	IGDBPacing        = 250 * time.Millisecond
	SteamSpyPacing    = 1000 * time.Millisecond
	SteamGridDBPacing = 500 * time.Millisecond
)

// ErrNotFound is a miss: the provider answered but has no such record.
var ErrNotFound = errors.New("not found at provider")

// ErrNotConfigured means credentials for a provider are missing.
var ErrNotConfigured = errors.New("provider not configured")

func wrapErr(provider string, err error) error {
	if err == nil {
		return nil
	}
	if fetch.IsNotFound(err) || errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return &apperr.ProviderError{Provider: provider, Err: err}
}

func defaultClient(client *fetch.Client, name string, pacing time.Duration, log *logger.Logger) *fetch.Client {
	if client != nil {
		return client
	}
	return fetch.New(fetch.Options{Name: name, MinInterval: pacing, Logger: log})
}
