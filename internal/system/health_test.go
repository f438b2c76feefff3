package system

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/proto"
)

func TestHealthServer(t *testing.T) {
	h, err := NewHealthServer(0, zaptest.NewLogger(t))
	require.NoError(t, err)
	h.Serve()
	t.Cleanup(h.Stop)

	conn, err := grpc.NewClient(h.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	client := healthpb.NewHealthClient(conn)
	check := func(service string) *healthpb.HealthCheckResponse {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp
	}

	notServing := &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}
	serving := &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}

	assert.True(t, proto.Equal(notServing, check(ServicePendant)))

	h.SetAll(true)
	assert.True(t, proto.Equal(serving, check("")))
	assert.True(t, proto.Equal(serving, check(ServiceCNCjs)))

	h.SetServing(ServiceCNCjs, false)
	assert.True(t, proto.Equal(notServing, check(ServiceCNCjs)))
	assert.True(t, proto.Equal(serving, check(ServicePendant)))
}
