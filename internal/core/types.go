package core

import (
	"encoding/json"
	"fmt"

	"github.com/thermalink/thermalink/internal/db"
	"github.com/thermalink/thermalink/internal/escpos"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// EventSender receives job lifecycle notifications.
type EventSender interface {
	SendJobEvent(event string, job *db.PrintJob)
}

// Job payloads as persisted in print_jobs.payload_json, mirroring the
// service call parameters.

type TextPayload struct {
	Text      string `json:"text"`
	FontSize  string `json:"font_size,omitempty"`
	Alignment string `json:"alignment,omitempty"`
	Bold      bool   `json:"bold,omitempty"`
}

type QRCodePayload struct {
	Data string `json:"data"`
	Size int    `json:"size"`
}

type BarcodePayload struct {
	Data string `json:"data"`
	Type string `json:"barcode_type"`
}

type FeedPayload struct {
	Lines int `json:"lines"`
}

// BuildJob validates a stored payload and produces the print job for
// the encoder. Validation lives in the escpos constructors, so a
// payload that enqueued cleanly decodes cleanly.
func BuildJob(kind, payloadJSON string) (escpos.Job, error) {
	switch kind {
	case "text":
		var p TextPayload
		if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
			return nil, fmt.Errorf("bad text payload: %w", err)
		}
		size, err := escpos.ParseFontSize(p.FontSize)
		if err != nil {
			return nil, err
		}
		align, err := escpos.ParseAlignment(p.Alignment)
		if err != nil {
			return nil, err
		}
		return escpos.NewText(p.Text, size, align, p.Bold)
	case "qr_code":
		var p QRCodePayload
		if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
			return nil, fmt.Errorf("bad qr payload: %w", err)
		}
		return escpos.NewQRCode(p.Data, p.Size)
	case "barcode":
		var p BarcodePayload
		if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
			return nil, fmt.Errorf("bad barcode payload: %w", err)
		}
		symbology, err := escpos.ParseSymbology(p.Type)
		if err != nil {
			return nil, err
		}
		return escpos.NewBarcode(p.Data, symbology)
	case "feed":
		var p FeedPayload
		if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
			return nil, fmt.Errorf("bad feed payload: %w", err)
		}
		return escpos.NewFeed(p.Lines)
	}
	return nil, fmt.Errorf("%w: unknown job kind %q", escpos.ErrInvalidParameter, kind)
}
