package rpc_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store/memory"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/rpc"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func status(t *testing.T, m *rpc.HealthMonitor) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := m.Health().Check(context.Background(), &healthpb.HealthCheckRequest{Service: rpc.ServiceName})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthMonitor_FollowsStorePing(t *testing.T) {
	st := memory.New()
	m := rpc.NewHealthMonitor(st, 0, silentLogger())
	ctx := context.Background()

	assert.True(t, m.CheckOnce(ctx))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, m))

	require.NoError(t, st.Close())
	assert.False(t, m.CheckOnce(ctx))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, m))
}

func TestHealthMonitor_StopMarksNotServing(t *testing.T) {
	m := rpc.NewHealthMonitor(memory.New(), 0, silentLogger())
	m.Start(context.Background())
	m.Stop()

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, m))
}

func TestServer_AnswersHealthOverGRPC(t *testing.T) {
	lis := bufconn.Listen(1 << 16)
	m := rpc.NewHealthMonitor(memory.New(), 0, silentLogger())
	srv := rpc.NewServer(lis, m)
	go func() { _ = srv.Serve() }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: rpc.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
