package eventing

import (
	"context"
	"testing"

	"memoryengine/internal/config"
)

func TestNewRedisThemeCache_DisabledIsNilNoOp(t *testing.T) {
	cache, err := NewRedisThemeCache(config.RedisConfig{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cache != nil {
		t.Fatalf("expected nil cache when disabled")
	}
	ctx := context.Background()
	if err := cache.Publish(ctx, ThemeInvalidation{ThemeID: "t1", Reason: "split"}); err != nil {
		t.Fatalf("nil cache Publish should be a no-op, got %v", err)
	}
	ch, cancel := cache.Subscribe(ctx)
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel with no events from a nil cache")
	}
}

func TestNewMaintenancePublisher_DisabledIsNilNoOp(t *testing.T) {
	pub, err := NewMaintenancePublisher(config.KafkaConfig{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub != nil {
		t.Fatalf("expected nil publisher when disabled")
	}
	if err := pub.Publish(context.Background(), MaintenanceEvent{Alpha: 0.5}); err != nil {
		t.Fatalf("nil publisher Publish should be a no-op, got %v", err)
	}
	pub.Close()
}
