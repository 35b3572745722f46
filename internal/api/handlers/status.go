package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/thermalink/thermalink/internal/core"
	"github.com/thermalink/thermalink/internal/transport"
)

type PrinterStatusResponse struct {
	State   string           `json:"state"`
	Device  *DeviceResponse  `json:"device,omitempty"`
	Queue   *core.QueueStats `json:"queue"`
	Version string           `json:"version,omitempty"`
}

type DeviceResponse struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	RSSI    int    `json:"rssi,omitempty"`
}

type StatusHandler struct {
	session          core.PrinterSession
	queue            *core.Queue
	scanner          transport.Scanner
	serviceUUID      string
	discoveryTimeout time.Duration
	version          string
}

func NewStatusHandler(session core.PrinterSession, queue *core.Queue, scanner transport.Scanner, serviceUUID string, discoveryTimeout time.Duration, version string) *StatusHandler {
	return &StatusHandler{
		session:          session,
		queue:            queue,
		scanner:          scanner,
		serviceUUID:      serviceUUID,
		discoveryTimeout: discoveryTimeout,
		version:          version,
	}
}

func (h *StatusHandler) GetStatus(c *gin.Context) {
	resp := PrinterStatusResponse{
		State:   h.session.State().String(),
		Queue:   h.queue.GetStats(c.Request.Context()),
		Version: h.version,
	}
	if handle := h.session.Handle(); handle != nil {
		resp.Device = &DeviceResponse{
			Address: handle.Address,
			Name:    handle.Name,
			RSSI:    handle.RSSI,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Discover scans for nearby printers advertising the service signature.
// An empty result is a normal outcome, not an error.
func (h *StatusHandler) Discover(c *gin.Context) {
	handles, err := transport.Discover(c.Request.Context(), h.scanner, h.serviceUUID, h.discoveryTimeout)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scan failed", "message": err.Error()})
		return
	}

	devices := make([]DeviceResponse, 0, len(handles))
	for _, handle := range handles {
		devices = append(devices, DeviceResponse{
			Address: handle.Address,
			Name:    handle.Name,
			RSSI:    handle.RSSI,
		})
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices, "count": len(devices)})
}
