// Package transport owns the logical connection to one thermal printer:
// discovery of the device, the connect/disconnect lifecycle with bounded
// retry, and delivery of encoded jobs as paced, transport-sized chunks.
package transport

import (
	"context"
	"errors"
)

var (
	ErrConnectTimeout    = errors.New("connect timed out")
	ErrDeviceUnreachable = errors.New("device unreachable")
	ErrServiceNotFound   = errors.New("printer service not found")
	ErrLinkLost          = errors.New("link lost")
	ErrNotConnected      = errors.New("printer not connected")
)

// DeviceHandle identifies one discovered printer.
type DeviceHandle struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	RSSI    int    `json:"rssi,omitempty"`
}

// Conn is a live link to the printer's write characteristic. Write sends
// one chunk; it must not be called with more bytes than the link's
// maximum single-write size.
type Conn interface {
	Write(p []byte) (n int, err error)
	Disconnect() error
}

// Dialer opens a Conn to a discovered device.
type Dialer interface {
	Dial(ctx context.Context, handle DeviceHandle) (Conn, error)
}

// Scanner reports devices advertising the given service signature until
// ctx is done. Returning ctx's error for a scan that ran its full
// window is fine; Discover treats that as a normal end of scan.
type Scanner interface {
	Scan(ctx context.Context, serviceUUID string, found func(DeviceHandle)) error
}
