// Package fetch provides the HTTP client for the council information API and
// a BadgerDB-backed response cache. The client implements syncer.Fetcher.
package fetch
