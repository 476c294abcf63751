package fetch

import "errors"

var (
	// ErrBaseURLRequired is returned when a client is created without an API base URL.
	ErrBaseURLRequired = errors.New("base URL is required")

	// ErrTokenRequired is returned when a client is created without an application token.
	ErrTokenRequired = errors.New("application token is required")

	// ErrOrganisationRequired is returned when a client is created without an organisation ID.
	ErrOrganisationRequired = errors.New("organisation ID is required")

	// ErrCacheMiss is returned when a response is not in the cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrMalformedResponse is returned when the API responds with a payload
	// missing the expected envelope.
	ErrMalformedResponse = errors.New("malformed API response")
)
