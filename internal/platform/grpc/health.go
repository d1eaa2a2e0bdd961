package grpc

import (
	"context"
	"fmt"
	"time"

	gogrpc "google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/platform/timeouts"
)

const (
	healthPollInitial = 250 * time.Millisecond
	healthPollMax     = time.Second
)

// WaitForHealth polls the standard gRPC health service until it reports
// SERVING for the named service, an empty name meaning the server as a
// whole. Each probe is capped at timeouts.GRPCRequest; polling backs off
// exponentially up to one second until the context ends.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return fmt.Errorf("grpc connection is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client := grpc_health_v1.NewHealthClient(conn)
	wait := healthPollInitial
	for {
		current, err := probeHealth(ctx, client, service)
		if err == nil && current == grpc_health_v1.HealthCheckResponse_SERVING {
			if logf != nil {
				logf("gRPC health reports SERVING")
			}
			return nil
		}
		if logf != nil {
			if err != nil {
				logf("health not ready: %v", err)
			} else {
				logf("health not ready: status %s", current.String())
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for gRPC health: %w", ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
		if wait > healthPollMax {
			wait = healthPollMax
		}
	}
}

func probeHealth(ctx context.Context, client grpc_health_v1.HealthClient, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
	defer cancel()

	response, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return response.GetStatus(), nil
}
