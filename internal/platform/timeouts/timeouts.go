// Package timeouts holds the timeout values shared by Kingshot Atlas
// services so that every binary bounds the same operation the same way.
package timeouts

import "time"

// GRPCDial bounds connection establishment to a gRPC peer, health check
// included. Dial helpers fall back to it when the caller passes no timeout.
const GRPCDial = 2 * time.Second

// GRPCRequest bounds a single gRPC call, including each health probe issued
// while waiting for a peer to come up.
const GRPCRequest = 2 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server drains in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second
