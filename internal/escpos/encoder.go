// Package escpos encodes print jobs into ESC/POS byte sequences for
// BLE thermal printers. Encoding is pure and atomic: a job either
// produces a complete command buffer or an error and no bytes.
package escpos

import (
	"bytes"
	"fmt"
)

// Control sequences, per the Epson ESC/POS reference.
var (
	cmdInit       = []byte{0x1B, 0x40}
	cmdBoldOn     = []byte{0x1B, 0x45, 0x01}
	cmdBoldOff    = []byte{0x1B, 0x45, 0x00}
	cmdSizeNormal = []byte{0x1D, 0x21, byte(FontSizeNormal)}
)

const lineFeed = 0x0A

// Init returns the printer initialization sequence (ESC @). Sent once
// when a transport session is established, not per job.
func Init() []byte {
	out := make([]byte, len(cmdInit))
	copy(out, cmdInit)
	return out
}

// Encode turns a job into its wire byte sequence.
//
// Text jobs always select alignment first; bold and non-default size are
// bracketed by matching resets so no style leaks into the next job. Text
// bytes outside the printer's code page are passed through unmodified;
// glyph mapping is the firmware's responsibility.
func Encode(job Job) ([]byte, error) {
	switch j := job.(type) {
	case Text:
		return encodeText(j)
	case QRCode:
		return encodeQRCode(j)
	case Barcode:
		return encodeBarcode(j)
	case Feed:
		return encodeFeed(j)
	}
	return nil, fmt.Errorf("%w: unknown job type %T", ErrInvalidParameter, job)
}

func encodeText(t Text) ([]byte, error) {
	switch t.FontSize {
	case FontSizeNormal, FontSizeLarge:
	default:
		return nil, fmt.Errorf("%w: font size 0x%02X", ErrInvalidParameter, byte(t.FontSize))
	}
	switch t.Alignment {
	case AlignLeft, AlignCenter, AlignRight:
	default:
		return nil, fmt.Errorf("%w: alignment 0x%02X", ErrInvalidParameter, byte(t.Alignment))
	}

	var buf bytes.Buffer
	buf.Write([]byte{0x1B, 0x61, byte(t.Alignment)})
	if t.Bold {
		buf.Write(cmdBoldOn)
	}
	if t.FontSize != FontSizeNormal {
		buf.Write([]byte{0x1D, 0x21, byte(t.FontSize)})
	}
	buf.WriteString(t.Content)
	if t.Bold {
		buf.Write(cmdBoldOff)
	}
	if t.FontSize != FontSizeNormal {
		buf.Write(cmdSizeNormal)
	}
	return buf.Bytes(), nil
}

func encodeFeed(f Feed) ([]byte, error) {
	if f.Lines < 1 {
		return nil, fmt.Errorf("%w: feed lines must be positive, got %d", ErrInvalidParameter, f.Lines)
	}
	buf := make([]byte, f.Lines)
	for i := range buf {
		buf[i] = lineFeed
	}
	return buf, nil
}
