package grpc

import (
	"context"
	"net"
	"testing"

	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthServiceTransitions(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	h := NewHealthService(logger.NewNop())
	h.Register(srv)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	client := healthpb.NewHealthClient(conn)

	check := func(want healthpb.HealthCheckResponse_ServingStatus) {
		t.Helper()
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			t.Fatal(err)
		}
		if resp.GetStatus() != want {
			t.Fatalf("status = %s, want %s", resp.GetStatus(), want)
		}
	}

	check(healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServing(true)
	check(healthpb.HealthCheckResponse_SERVING)
	h.Shutdown()
	check(healthpb.HealthCheckResponse_NOT_SERVING)
}
