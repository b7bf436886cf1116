// Package config loads and validates the meetscribe service
// configuration from a YAML file, a .env file, and environment
// variables, in increasing order of precedence.
//
// Client-facing knobs that historically arrived as loosely-typed
// environment strings (interim results flag, minimum utterance
// length) are kept as strings and interpreted through tolerant
// coercers rather than strict parsing.
package config
