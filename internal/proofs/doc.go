// Package proofs packages state inclusion proofs for recorded signals. It
// binds a block header to an eth_getProof style response for one storage slot
// and checks that the two describe the same state root before handing the
// result to a verifier. The package performs no trie verification and never
// retries a failed query.
package proofs
