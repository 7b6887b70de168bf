package broker

import "errors"

var (
	// ErrNoRoute means no directory prefix matches the requested mcc+sn
	ErrNoRoute = errors.New("no provider route for subscriber")

	// ErrUnauthorized means the provider rejected the authorization code
	ErrUnauthorized = errors.New("authorization code rejected by provider")

	// ErrProviderUnavailable means the provider could not be reached or
	// answered unusably
	ErrProviderUnavailable = errors.New("provider unavailable")
)
