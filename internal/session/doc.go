// Package session keeps per-sender conversation state in memory.
//
// Sessions are created on first contact and enriched with the sender's
// profile in the background. The registry is bounded: the least recently
// used session is dropped when it is full, and sessions idle for longer
// than the TTL expire.
package session
