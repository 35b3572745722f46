package transport

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultDiscoveryTimeout bounds a scan pass.
const DefaultDiscoveryTimeout = 10 * time.Second

// Discover scans until timeout elapses and returns every device whose
// advertisement matched the service signature, deduplicated by address.
// An empty result after a full scan is not an error.
func Discover(ctx context.Context, scanner Scanner, serviceUUID string, timeout time.Duration) ([]DeviceHandle, error) {
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		seen    = make(map[string]bool)
		devices []DeviceHandle
	)
	err := scanner.Scan(ctx, serviceUUID, func(h DeviceHandle) {
		mu.Lock()
		defer mu.Unlock()
		if seen[h.Address] {
			return
		}
		seen[h.Address] = true
		devices = append(devices, h)
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return devices, nil
}
