// Package app provides the application service layer.
//
// Routes acknowledged webhook envelopes to message handling and live-agent
// handover. Sits between the webhook adapter and the platform client.
// Depends on domain interfaces, not concrete implementations.
package app
