package telemetry

import (
	"context"
	"testing"

	"github.com/hammamikhairi/turnocall/internal/logger"
)

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown := Setup(context.Background(), Options{Service: "turnocall"}, logger.New(logger.LevelOff, nil))
	if shutdown == nil {
		t.Fatal("nil shutdown")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSetupWithEndpoint(t *testing.T) {
	// The gRPC exporter connects lazily, so setup succeeds without a
	// collector; shutdown with a cancelled context must not hang.
	shutdown := Setup(context.Background(), Options{
		Service:  "turnocall",
		Endpoint: "127.0.0.1:4317",
		Insecure: true,
		DeviceID: "lobby-1",
	}, logger.New(logger.LevelOff, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
