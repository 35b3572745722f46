package escpos

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidData      = errors.New("invalid barcode data")
	ErrPayloadTooLarge  = errors.New("payload too large")
)

// FontSize is the numeric argument to the GS ! character size command.
type FontSize byte

const (
	FontSizeNormal FontSize = 0x00
	FontSizeLarge  FontSize = 0x11
)

// Alignment is the numeric argument to the ESC a justification command.
type Alignment byte

const (
	AlignLeft   Alignment = 0x00
	AlignCenter Alignment = 0x01
	AlignRight  Alignment = 0x02
)

// Symbology is the GS k barcode system selector byte. Values below 0x41
// use the NUL-terminated data convention, values from 0x41 up the
// length-prefixed one.
type Symbology byte

const (
	SymbologyUPC     Symbology = 0x00
	SymbologyEAN13   Symbology = 0x02
	SymbologyCODE39  Symbology = 0x04
	SymbologyCODE128 Symbology = 0x49
)

// Job is one logical print request. The variant set is closed: every
// value is built by one of the constructors below, which validate their
// inputs once so encoding cannot fail on enum values.
type Job interface {
	// Kind names the job variant for job records and event payloads.
	Kind() string
}

type Text struct {
	Content   string
	FontSize  FontSize
	Alignment Alignment
	Bold      bool
}

func (Text) Kind() string { return "text" }

type QRCode struct {
	Data string
	Size int
}

func (QRCode) Kind() string { return "qr_code" }

type Barcode struct {
	Data      string
	Symbology Symbology
}

func (Barcode) Kind() string { return "barcode" }

type Feed struct {
	Lines int
}

func (Feed) Kind() string { return "feed" }

func NewText(content string, size FontSize, align Alignment, bold bool) (Text, error) {
	switch size {
	case FontSizeNormal, FontSizeLarge:
	default:
		return Text{}, fmt.Errorf("%w: font size 0x%02X", ErrInvalidParameter, byte(size))
	}
	switch align {
	case AlignLeft, AlignCenter, AlignRight:
	default:
		return Text{}, fmt.Errorf("%w: alignment 0x%02X", ErrInvalidParameter, byte(align))
	}
	return Text{Content: content, FontSize: size, Alignment: align, Bold: bold}, nil
}

func NewQRCode(data string, size int) (QRCode, error) {
	if size < qrSizeMin || size > qrSizeMax {
		return QRCode{}, fmt.Errorf("%w: qr size %d outside %d..%d", ErrInvalidParameter, size, qrSizeMin, qrSizeMax)
	}
	if len(data) == 0 {
		return QRCode{}, fmt.Errorf("%w: qr data is empty", ErrInvalidParameter)
	}
	if len(data) > qrMaxPayload {
		return QRCode{}, fmt.Errorf("%w: qr data is %d bytes, limit %d", ErrPayloadTooLarge, len(data), qrMaxPayload)
	}
	return QRCode{Data: data, Size: size}, nil
}

func NewBarcode(data string, symbology Symbology) (Barcode, error) {
	if err := validateBarcodeData(data, symbology); err != nil {
		return Barcode{}, err
	}
	return Barcode{Data: data, Symbology: symbology}, nil
}

func NewFeed(lines int) (Feed, error) {
	if lines < 1 {
		return Feed{}, fmt.Errorf("%w: feed lines must be positive, got %d", ErrInvalidParameter, lines)
	}
	return Feed{Lines: lines}, nil
}

func ParseFontSize(s string) (FontSize, error) {
	switch strings.ToLower(s) {
	case "", "normal":
		return FontSizeNormal, nil
	case "large":
		return FontSizeLarge, nil
	}
	return 0, fmt.Errorf("%w: unknown font size %q", ErrInvalidParameter, s)
}

func ParseAlignment(s string) (Alignment, error) {
	switch strings.ToLower(s) {
	case "", "left":
		return AlignLeft, nil
	case "center":
		return AlignCenter, nil
	case "right":
		return AlignRight, nil
	}
	return 0, fmt.Errorf("%w: unknown alignment %q", ErrInvalidParameter, s)
}

func ParseSymbology(s string) (Symbology, error) {
	switch strings.ToUpper(s) {
	case "", "CODE128":
		return SymbologyCODE128, nil
	case "CODE39":
		return SymbologyCODE39, nil
	case "EAN13":
		return SymbologyEAN13, nil
	case "UPC":
		return SymbologyUPC, nil
	}
	return 0, fmt.Errorf("%w: unknown symbology %q", ErrInvalidParameter, s)
}

// SymbologyName is the inverse of ParseSymbology, for job records.
func SymbologyName(s Symbology) string {
	switch s {
	case SymbologyCODE128:
		return "CODE128"
	case SymbologyCODE39:
		return "CODE39"
	case SymbologyEAN13:
		return "EAN13"
	case SymbologyUPC:
		return "UPC"
	}
	return fmt.Sprintf("0x%02X", byte(s))
}
