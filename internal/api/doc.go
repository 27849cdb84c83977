// Package api exposes slot derivation and proof jobs over HTTP.
package api
