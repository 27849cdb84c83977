// Package auth guards the signald REST API with static bearer tokens.
//
// Tokens are configured by the hex SHA-256 digest of their value together
// with the permissions they grant. Every authenticated request is written to
// the audit log.
package auth
