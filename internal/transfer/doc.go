// Package transfer is a small content-addressed transfer engine.
//
// A provider hashes a fixed set of files into a collection, listens on a TLS
// gRPC endpoint with an ephemeral certificate and serves the collection to a
// single getter that presents the right auth token. Everything a getter
// needs to connect is packed into a Ticket: the provider address, the peer
// identity of its certificate, the collection root hash and the token.
//
// The getter pins the peer identity during the TLS handshake, checks the
// collection against the root hash and verifies every blob with BLAKE3 while
// it streams. Provider-side progress is published as Events to subscribers.
package transfer
