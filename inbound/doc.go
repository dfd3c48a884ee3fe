// Package inbound exposes the HTTP surface for gateway webhooks. The
// endpoint reads the raw body before any decoding so signature verification
// always hashes the exact wire bytes.
package inbound
