// Package ble implements the transport scanner and dialer on top of
// tinygo.org/x/bluetooth, talking GATT to the printer's write
// characteristic.
package ble

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/thermalink/thermalink/internal/transport"
)

// Central wraps the host's BLE adapter. It remembers the native address
// of every device it has seen in a scan so Dial can connect without
// rebuilding platform-specific address values from strings.
type Central struct {
	adapter  *bluetooth.Adapter
	charUUID bluetooth.UUID
	log      *logrus.Entry

	mu    sync.Mutex
	addrs map[string]bluetooth.Address
}

func NewCentral(characteristicUUID string, log *logrus.Logger) (*Central, error) {
	charUUID, err := bluetooth.ParseUUID(characteristicUUID)
	if err != nil {
		return nil, fmt.Errorf("bad characteristic uuid %q: %w", characteristicUUID, err)
	}

	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable bluetooth adapter: %w", err)
	}

	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Central{
		adapter:  adapter,
		charUUID: charUUID,
		log:      log.WithField("component", "ble"),
		addrs:    make(map[string]bluetooth.Address),
	}, nil
}

// Scan reports devices advertising the service signature until ctx is
// done.
func (c *Central) Scan(ctx context.Context, serviceUUID string, found func(transport.DeviceHandle)) error {
	svcUUID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return fmt.Errorf("bad service uuid %q: %w", serviceUUID, err)
	}

	scanErr := make(chan error, 1)
	go func() {
		scanErr <- c.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(svcUUID) {
				return
			}
			addr := result.Address.String()
			c.mu.Lock()
			c.addrs[addr] = result.Address
			c.mu.Unlock()

			found(transport.DeviceHandle{
				Address: addr,
				Name:    result.LocalName(),
				RSSI:    int(result.RSSI),
			})
		})
	}()

	select {
	case err := <-scanErr:
		return err
	case <-ctx.Done():
		if err := c.adapter.StopScan(); err != nil {
			c.log.WithError(err).Debug("stop scan failed")
		}
		<-scanErr
		return ctx.Err()
	}
}

// Dial connects to a previously scanned device and resolves its write
// characteristic.
func (c *Central) Dial(ctx context.Context, handle transport.DeviceHandle) (transport.Conn, error) {
	c.mu.Lock()
	addr, ok := c.addrs[handle.Address]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s has not been seen in a scan", transport.ErrDeviceUnreachable, handle.Address)
	}

	type dialResult struct {
		conn transport.Conn
		err  error
	}
	done := make(chan dialResult, 1)
	go func() {
		conn, err := c.dial(addr)
		done <- dialResult{conn, err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", transport.ErrConnectTimeout, ctx.Err())
	}
}

func (c *Central) dial(addr bluetooth.Address) (transport.Conn, error) {
	device, err := c.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrDeviceUnreachable, err)
	}

	char, err := c.findCharacteristic(device)
	if err != nil {
		device.Disconnect()
		return nil, err
	}

	c.log.WithField("address", addr.String()).Debug("gatt link established")
	return &gattConn{device: device, char: char}, nil
}

// findCharacteristic walks every service rather than filtering by the
// service UUID: some firmware advertises one signature but hosts the
// write characteristic under another service.
func (c *Central) findCharacteristic(device *bluetooth.Device) (bluetooth.DeviceCharacteristic, error) {
	var zero bluetooth.DeviceCharacteristic

	services, err := device.DiscoverServices(nil)
	if err != nil {
		return zero, fmt.Errorf("%w: service discovery failed: %v", transport.ErrServiceNotFound, err)
	}
	for _, svc := range services {
		chars, err := svc.DiscoverCharacteristics([]bluetooth.UUID{c.charUUID})
		if err != nil || len(chars) == 0 {
			continue
		}
		return chars[0], nil
	}
	return zero, fmt.Errorf("%w: characteristic %s not exposed", transport.ErrServiceNotFound, c.charUUID.String())
}

type gattConn struct {
	device *bluetooth.Device
	char   bluetooth.DeviceCharacteristic
}

func (g *gattConn) Write(p []byte) (int, error) {
	return g.char.WriteWithoutResponse(p)
}

func (g *gattConn) Disconnect() error {
	return g.device.Disconnect()
}
