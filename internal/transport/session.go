package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thermalink/thermalink/internal/escpos"
)

// State is the session lifecycle position.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

// SessionConfig is the transport tuning surface. Zero values fall back
// to the documented defaults.
type SessionConfig struct {
	Address          string
	ServiceUUID      string
	ChunkSize        int
	ChunkDelay       time.Duration
	WriteTimeout     time.Duration
	ConnectTimeout   time.Duration
	ConnectRetries   int
	ConnectBackoff   time.Duration
	DiscoveryTimeout time.Duration
}

const (
	defaultWriteTimeout   = 5 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultConnectRetries = 3
	defaultConnectBackoff = 2 * time.Second
	maxConnectBackoff     = time.Minute
)

// Session owns the single logical connection to one printer. Jobs are
// serialized: only one WriteJob drains at a time, so a job's chunks are
// never interleaved with another's on the wire.
type Session struct {
	cfg     SessionConfig
	scanner Scanner
	dialer  Dialer
	log     *logrus.Entry

	state atomic.Int32

	// mu serializes connect, disconnect and job writes, and guards conn,
	// handle and lastWrite.
	mu        sync.Mutex
	conn      Conn
	handle    *DeviceHandle
	lastWrite time.Time
}

func NewSession(cfg SessionConfig, scanner Scanner, dialer Dialer, log *logrus.Logger) *Session {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkDelay <= 0 {
		cfg.ChunkDelay = DefaultChunkDelay
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ConnectRetries <= 0 {
		cfg.ConnectRetries = defaultConnectRetries
	}
	if cfg.ConnectBackoff <= 0 {
		cfg.ConnectBackoff = defaultConnectBackoff
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{
		cfg:     cfg,
		scanner: scanner,
		dialer:  dialer,
		log:     log.WithField("component", "session"),
	}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Handle returns the device the session is bound to, if any.
func (s *Session) Handle() *DeviceHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return nil
	}
	h := *s.handle
	return &h
}

// Connect discovers the printer and opens the link, retrying with
// exponential backoff up to the configured attempt count. It is a no-op
// when already connected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}
	s.state.Store(int32(StateConnecting))

	var lastErr error
	for attempt := 0; attempt < s.cfg.ConnectRetries; attempt++ {
		if attempt > 0 {
			backoff := s.cfg.ConnectBackoff * time.Duration(1<<uint(attempt-1))
			if backoff > maxConnectBackoff {
				backoff = maxConnectBackoff
			}
			s.log.WithFields(logrus.Fields{"attempt": attempt + 1, "backoff": backoff}).Info("retrying connect")
			select {
			case <-ctx.Done():
				s.state.Store(int32(StateDisconnected))
				return fmt.Errorf("%w: %v", ErrConnectTimeout, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = s.connectOnce(ctx)
		if lastErr == nil {
			s.state.Store(int32(StateConnected))
			s.log.WithField("address", s.handle.Address).Info("printer connected")
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}

	s.state.Store(int32(StateDisconnected))
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrConnectTimeout, lastErr)
	}
	return lastErr
}

func (s *Session) connectOnce(ctx context.Context) error {
	handle, err := s.locate(ctx)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	conn, err := s.dialer.Dial(dialCtx, handle)
	if err != nil {
		if dialCtx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		return err
	}

	s.conn = conn
	s.handle = &handle

	// One-time printer initialization for the new link.
	if err := s.writePaced(escpos.Init()); err != nil {
		s.dropLocked()
		return fmt.Errorf("%w: init write failed: %v", ErrDeviceUnreachable, err)
	}
	return nil
}

func (s *Session) locate(ctx context.Context) (DeviceHandle, error) {
	devices, err := Discover(ctx, s.scanner, s.cfg.ServiceUUID, s.cfg.DiscoveryTimeout)
	if err != nil {
		return DeviceHandle{}, fmt.Errorf("%w: scan failed: %v", ErrDeviceUnreachable, err)
	}
	for _, d := range devices {
		if s.cfg.Address == "" || strings.EqualFold(d.Address, s.cfg.Address) {
			return d, nil
		}
	}
	if s.cfg.Address != "" {
		return DeviceHandle{}, fmt.Errorf("%w: %s not seen in scan", ErrDeviceUnreachable, s.cfg.Address)
	}
	return DeviceHandle{}, fmt.Errorf("%w: no advertisement matched service %s", ErrDeviceUnreachable, s.cfg.ServiceUUID)
}

// WriteJob encodes the job and drains it to the wire in paced chunks.
// Concurrent callers are serialized, never interleaved. Cancellation is
// honored only before the first chunk; once bytes are on the wire the
// job runs to completion or link failure. A mid-stream failure drops
// the connection and abandons the remainder: the caller must reconnect
// and resubmit the whole job.
func (s *Session) WriteJob(ctx context.Context, job escpos.Job) error {
	buf, err := escpos.Encode(job)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	frags := NewFragments(buf, s.cfg.ChunkSize)
	total := frags.Count()
	sent := 0
	for {
		chunk, ok := frags.Next()
		if !ok {
			break
		}
		if err := s.writePaced(chunk); err != nil {
			s.dropLocked()
			s.log.WithFields(logrus.Fields{
				"job":    job.Kind(),
				"sent":   sent,
				"chunks": total,
			}).Warn("link lost mid-job")
			return fmt.Errorf("%w: chunk %d/%d: %v", ErrLinkLost, sent+1, total, err)
		}
		sent++
	}

	s.log.WithFields(logrus.Fields{"job": job.Kind(), "bytes": len(buf), "chunks": total}).Debug("job written")
	return nil
}

// writePaced enforces the inter-chunk delay against the previous wire
// write (including the last chunk of the previous job) and bounds the
// write itself so a stalled link surfaces instead of hanging.
func (s *Session) writePaced(chunk []byte) error {
	if wait := s.cfg.ChunkDelay - time.Since(s.lastWrite); wait > 0 {
		time.Sleep(wait)
	}

	done := make(chan error, 1)
	conn := s.conn
	go func() {
		_, err := conn.Write(chunk)
		done <- err
	}()

	select {
	case err := <-done:
		s.lastWrite = time.Now()
		return err
	case <-time.After(s.cfg.WriteTimeout):
		s.lastWrite = time.Now()
		return fmt.Errorf("write stalled for %s", s.cfg.WriteTimeout)
	}
}

// Disconnect closes the link. Idempotent; always succeeds.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked()
}

func (s *Session) dropLocked() {
	if s.conn != nil {
		if err := s.conn.Disconnect(); err != nil {
			s.log.WithError(err).Debug("disconnect returned error")
		}
		s.conn = nil
	}
	s.handle = nil
	s.state.Store(int32(StateDisconnected))
}
