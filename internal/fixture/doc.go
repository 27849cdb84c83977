// Package fixture renders Solidity test fixtures from assembled signal
// proofs: a single signal proof, or a batch of bridge deposit proofs taken at
// one block.
package fixture
