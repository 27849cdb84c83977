// Package web3 holds chain connectivity shared by the proof tooling: chain
// definitions loaded from YAML, the Client interface implemented per chain
// family, and contract artifact loading for the signal service.
package web3
