package server

import (
	internalserver "github.com/SmitUplenchwar2687/Tollgate/internal/server"
)

// Server answers rate-limited, optionally identity-gated requests.
type Server = internalserver.Server

// Options configures a Server.
type Options = internalserver.Options

// Authenticator verifies the caller's access token.
type Authenticator = internalserver.Authenticator

// Emitter receives one analytics record per handled request.
type Emitter = internalserver.Emitter

// Hub streams analytics records to WebSocket clients.
type Hub = internalserver.Hub

// DefaultClientIPHeader is the header the edge sets to the caller address.
const DefaultClientIPHeader = internalserver.DefaultClientIPHeader

// New creates a Server.
func New(opts Options) (*Server, error) {
	return internalserver.New(opts)
}

// NewHub creates a WebSocket hub.
func NewHub() *Hub {
	return internalserver.NewHub()
}
