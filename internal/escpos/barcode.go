package escpos

import (
	"bytes"
	"fmt"
)

// Fixed barcode rendering defaults: HRI text below the bars, height 100
// dots, module width 2.
var (
	barcodeHRIBelow = []byte{0x1D, 0x48, 0x02}
	barcodeHeight   = []byte{0x1D, 0x68, 0x64}
	barcodeWidth    = []byte{0x1D, 0x77, 0x02}
)

const barcodeMaxLen = 255

func encodeBarcode(b Barcode) ([]byte, error) {
	if err := validateBarcodeData(b.Data, b.Symbology); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(barcodeHRIBelow)
	buf.Write(barcodeHeight)
	buf.Write(barcodeWidth)

	// GS k has two framing conventions keyed off the symbology selector:
	// function A terminates the data with NUL, function B prefixes its
	// length.
	if b.Symbology >= 0x41 {
		buf.Write([]byte{0x1D, 0x6B, byte(b.Symbology), byte(len(b.Data))})
		buf.WriteString(b.Data)
	} else {
		buf.Write([]byte{0x1D, 0x6B, byte(b.Symbology)})
		buf.WriteString(b.Data)
		buf.WriteByte(0x00)
	}
	return buf.Bytes(), nil
}

func validateBarcodeData(data string, symbology Symbology) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: barcode data is empty", ErrInvalidData)
	}
	if len(data) > barcodeMaxLen {
		return fmt.Errorf("%w: barcode data is %d bytes, limit %d", ErrInvalidData, len(data), barcodeMaxLen)
	}

	switch symbology {
	case SymbologyEAN13:
		// 12 digits plus optional check digit.
		if len(data) != 12 && len(data) != 13 {
			return fmt.Errorf("%w: EAN13 needs 12 or 13 digits, got %d", ErrInvalidData, len(data))
		}
		if !allDigits(data) {
			return fmt.Errorf("%w: EAN13 data must be numeric", ErrInvalidData)
		}
	case SymbologyUPC:
		if len(data) != 11 && len(data) != 12 {
			return fmt.Errorf("%w: UPC-A needs 11 or 12 digits, got %d", ErrInvalidData, len(data))
		}
		if !allDigits(data) {
			return fmt.Errorf("%w: UPC-A data must be numeric", ErrInvalidData)
		}
	case SymbologyCODE39:
		for i := 0; i < len(data); i++ {
			if !code39Char(data[i]) {
				return fmt.Errorf("%w: CODE39 cannot encode %q", ErrInvalidData, data[i])
			}
		}
	case SymbologyCODE128:
		for i := 0; i < len(data); i++ {
			if data[i] < 0x20 || data[i] > 0x7E {
				return fmt.Errorf("%w: CODE128 data must be printable ASCII", ErrInvalidData)
			}
		}
	default:
		return fmt.Errorf("%w: unknown symbology 0x%02X", ErrInvalidParameter, byte(symbology))
	}
	return nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func code39Char(c byte) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	}
	switch c {
	case ' ', '-', '.', '$', '/', '+', '%':
		return true
	}
	return false
}
