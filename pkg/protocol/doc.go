// Package protocol defines the wire-level types of the Clearline
// payment-request protocol and their canonical encoding.
//
// Responsibilities:
//   - action, signature, identity and request data shapes
//   - canonical action bytes used for hashing and signing
//   - content-derived request identifiers
//   - strict decoding of externally supplied actions
//
// Non-responsibilities:
//   - signature verification and key handling (pkg/sign)
//   - state transition rules (pkg/engine)
package protocol
