// Package webhooks contains gateway webhook verification, normalization,
// and delivery processing.
//
// Signatures are computed over the exact wire bytes of the request body;
// re-serializing the payload before hashing changes the bytes and breaks
// verification, so the processor never parses before the verifier has run.
package webhooks
