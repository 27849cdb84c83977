// Package slot derives the storage location a signal service writes a signal
// to. Namespaces are mapped to 256-aligned base slots using the ERC-7201
// scheme: keccak256(keccak256(namespace) - 1) with the low byte cleared.
//
// Namespace bytes are built from fixed-width fields packed without
// delimiters, in an order chosen by a SchemeVersion. Every function in this
// package is pure and safe for concurrent use.
package slot
