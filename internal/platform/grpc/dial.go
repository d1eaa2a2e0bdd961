package grpc

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/platform/timeouts"
)

// DialStage identifies which phase of DialWithHealth failed.
type DialStage string

const (
	// DialStageConnect marks a failure to establish the connection.
	DialStageConnect DialStage = "connect"
	// DialStageHealth marks a connection that never reported SERVING.
	DialStageHealth DialStage = "health"
)

// DialError carries the failed stage alongside the underlying error so
// callers can distinguish unreachable peers from unhealthy ones.
type DialError struct {
	Stage DialStage
	Err   error
}

// Error implements the error interface.
func (e *DialError) Error() string {
	if e == nil {
		return "gRPC dial failed"
	}
	return fmt.Sprintf("gRPC %s failed: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *DialError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Dialer establishes gRPC client connections. The indirection exists so
// tests can substitute failing dials without a listener.
type Dialer interface {
	DialContext(ctx context.Context, addr string, opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error)
}

// DialerFunc adapts a plain function to the Dialer interface.
type DialerFunc func(ctx context.Context, addr string, opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error)

// DialContext implements Dialer.
func (fn DialerFunc) DialContext(ctx context.Context, addr string, opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error) {
	return fn(ctx, addr, opts...)
}

// DefaultClientDialOptions returns the dial options every in-cluster client
// uses: plaintext transport, blocking connect, and the OTel stats handler so
// outbound calls join the active trace.
func DefaultClientDialOptions() []gogrpc.DialOption {
	return []gogrpc.DialOption{
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithBlock(),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// DialWithHealth connects to addr and blocks until the peer's health check
// reports SERVING. The connection is closed again if the health wait fails.
// A non-positive dialTimeout falls back to timeouts.GRPCDial; the timeout
// bounds the connect and the health wait together.
func DialWithHealth(ctx context.Context, dialer Dialer, addr string, dialTimeout time.Duration, logf func(string, ...any), opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if dialer == nil {
		dialer = DialerFunc(gogrpc.DialContext)
	}
	if dialTimeout <= 0 {
		dialTimeout = timeouts.GRPCDial
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, err := dialer.DialContext(dialCtx, addr, opts...)
	if err != nil {
		return nil, &DialError{Stage: DialStageConnect, Err: err}
	}
	if err := WaitForHealth(dialCtx, conn, "", logf); err != nil {
		_ = conn.Close()
		return nil, &DialError{Stage: DialStageHealth, Err: err}
	}
	return conn, nil
}
