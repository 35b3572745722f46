package escpos

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	qrSizeMin = 1
	qrSizeMax = 8

	// The GS ( k store command carries a two-byte length field; the
	// practical ceiling for the model 2 symbol is far below the field's
	// range, so the payload is bounded here.
	qrMaxPayload = 2048
)

// GS ( k sub-commands for the QR symbol, in the order the printer
// expects them: model select, module size, error correction, store,
// print.
var (
	qrModel2   = []byte{0x1D, 0x28, 0x6B, 0x04, 0x00, 0x31, 0x41, 0x32, 0x00}
	qrECLevelL = []byte{0x1D, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x45, 0x30}
	qrPrint    = []byte{0x1D, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x51, 0x30}
)

func encodeQRCode(q QRCode) ([]byte, error) {
	if q.Size < qrSizeMin || q.Size > qrSizeMax {
		return nil, fmt.Errorf("%w: qr size %d outside %d..%d", ErrInvalidParameter, q.Size, qrSizeMin, qrSizeMax)
	}
	if len(q.Data) == 0 {
		return nil, fmt.Errorf("%w: qr data is empty", ErrInvalidParameter)
	}
	if len(q.Data) > qrMaxPayload {
		return nil, fmt.Errorf("%w: qr data is %d bytes, limit %d", ErrPayloadTooLarge, len(q.Data), qrMaxPayload)
	}

	var buf bytes.Buffer
	buf.Write(qrModel2)

	buf.Write([]byte{0x1D, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x43, byte(q.Size)})
	buf.Write(qrECLevelL)

	// Store symbol data. The length field counts the cn/fn/m bytes plus
	// the payload, little-endian.
	var length [2]byte
	binary.LittleEndian.PutUint16(length[:], uint16(len(q.Data)+3))
	buf.Write([]byte{0x1D, 0x28, 0x6B})
	buf.Write(length[:])
	buf.Write([]byte{0x31, 0x50, 0x30})
	buf.WriteString(q.Data)

	buf.Write(qrPrint)
	return buf.Bytes(), nil
}
