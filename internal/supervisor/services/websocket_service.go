// BusTracker - Real-Time Vehicle Location Broadcast Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package services provides suture.Service wrappers for the long-running
// components of BusTracker.
package services

import (
	"context"
)

// HubRunner matches the WebSocket hub's RunWithContext method, allowing
// this wrapper to avoid importing the websocket package.
//
// Satisfied by *websocket.Hub.
type HubRunner interface {
	// RunWithContext runs the hub event loop until the context is
	// canceled.
	RunWithContext(ctx context.Context) error
}

// WebSocketService wraps the hub as a supervised service. If the hub
// event loop crashes, the supervisor restarts it; connected clients
// reconnect and resume receiving updates.
type WebSocketService struct {
	hub  HubRunner
	name string
}

// NewWebSocketService creates a hub service wrapper.
func NewWebSocketService(hub HubRunner) *WebSocketService {
	return &WebSocketService{
		hub:  hub,
		name: "websocket-hub",
	}
}

// Serve implements suture.Service. Returns ctx.Err() on normal shutdown.
func (s *WebSocketService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for supervisor log messages.
func (s *WebSocketService) String() string {
	return s.name
}
