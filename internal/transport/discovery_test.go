package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fnScanner func(ctx context.Context, serviceUUID string, found func(DeviceHandle)) error

func (f fnScanner) Scan(ctx context.Context, serviceUUID string, found func(DeviceHandle)) error {
	return f(ctx, serviceUUID, found)
}

func TestDiscoverEmptyScanIsNotAnError(t *testing.T) {
	scanner := fnScanner(func(ctx context.Context, _ string, _ func(DeviceHandle)) error {
		<-ctx.Done()
		return ctx.Err()
	})
	devices, err := Discover(context.Background(), scanner, "0000ff02-0000-1000-8000-00805f9b34fb", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("got %d devices, want 0", len(devices))
	}
}

func TestDiscoverDeduplicatesByAddress(t *testing.T) {
	scanner := fnScanner(func(ctx context.Context, _ string, found func(DeviceHandle)) error {
		found(DeviceHandle{Address: "AA:AA", Name: "one"})
		found(DeviceHandle{Address: "BB:BB", Name: "two"})
		found(DeviceHandle{Address: "AA:AA", Name: "one again"})
		return nil
	})
	devices, err := Discover(context.Background(), scanner, "", time.Second)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}
	if devices[0].Address != "AA:AA" || devices[1].Address != "BB:BB" {
		t.Errorf("unexpected order: %+v", devices)
	}
}

func TestDiscoverSurfacesScannerFaults(t *testing.T) {
	boom := errors.New("adapter disabled")
	scanner := fnScanner(func(ctx context.Context, _ string, _ func(DeviceHandle)) error {
		return boom
	})
	if _, err := Discover(context.Background(), scanner, "", time.Second); !errors.Is(err, boom) {
		t.Errorf("err = %v, want scanner fault", err)
	}
}
