// Package signalproof is a Go client for the signald REST API.
package signalproof
