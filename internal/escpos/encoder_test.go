package escpos

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeTextCenteredBold(t *testing.T) {
	job, err := NewText("A", FontSizeNormal, AlignCenter, true)
	if err != nil {
		t.Fatalf("NewText: %v", err)
	}
	got, err := Encode(job)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x1B, 0x61, 0x01, 0x1B, 0x45, 0x01, 'A', 0x1B, 0x45, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}
}

func TestEncodeTextPlainLeft(t *testing.T) {
	got, err := Encode(Text{Content: "hello", FontSize: FontSizeNormal, Alignment: AlignLeft})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := append([]byte{0x1B, 0x61, 0x00}, []byte("hello")...)
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}
}

func TestEncodeTextLargeSizeBracketed(t *testing.T) {
	got, err := Encode(Text{Content: "BIG", FontSize: FontSizeLarge, Alignment: AlignRight})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x1B, 0x61, 0x02, 0x1D, 0x21, 0x11, 'B', 'I', 'G', 0x1D, 0x21, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}
}

func TestEncodeTextBoldPairBracketsText(t *testing.T) {
	got, err := Encode(Text{Content: "mid", FontSize: FontSizeLarge, Alignment: AlignLeft, Bold: true})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	on := bytes.Index(got, []byte{0x1B, 0x45, 0x01})
	txt := bytes.Index(got, []byte("mid"))
	off := bytes.Index(got, []byte{0x1B, 0x45, 0x00})
	if on < 0 || txt < 0 || off < 0 || !(on < txt && txt < off) {
		t.Errorf("bold enable/disable does not bracket text: % X", got)
	}
}

func TestEncodeTextPassesNonASCIIThrough(t *testing.T) {
	raw := "caf\xE9"
	got, err := Encode(Text{Content: raw, FontSize: FontSizeNormal, Alignment: AlignLeft})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Contains(got, []byte(raw)) {
		t.Errorf("non-ASCII bytes were altered: % X", got)
	}
}

func TestEncodeFeed(t *testing.T) {
	got, err := Encode(Feed{Lines: 3})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(got, []byte{0x0A, 0x0A, 0x0A}) {
		t.Errorf("got % X, want 0A 0A 0A", got)
	}
}

func TestEncodeFeedRejectsNonPositive(t *testing.T) {
	for _, lines := range []int{0, -1} {
		buf, err := Encode(Feed{Lines: lines})
		if !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("lines=%d: err = %v, want ErrInvalidParameter", lines, err)
		}
		if buf != nil {
			t.Errorf("lines=%d: got bytes on failed encode", lines)
		}
	}
}

func TestEncodeQRCode(t *testing.T) {
	got, err := Encode(QRCode{Data: "HI", Size: 4})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var want bytes.Buffer
	want.Write([]byte{0x1D, 0x28, 0x6B, 0x04, 0x00, 0x31, 0x41, 0x32, 0x00})
	want.Write([]byte{0x1D, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x43, 0x04})
	want.Write([]byte{0x1D, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x45, 0x30})
	// store: len("HI")+3 = 5, little-endian
	want.Write([]byte{0x1D, 0x28, 0x6B, 0x05, 0x00, 0x31, 0x50, 0x30})
	want.WriteString("HI")
	want.Write([]byte{0x1D, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x51, 0x30})

	if !bytes.Equal(got, want.Bytes()) {
		t.Errorf("got % X\nwant % X", got, want.Bytes())
	}
}

func TestEncodeQRCodeStoreLengthLittleEndian(t *testing.T) {
	data := make([]byte, 300)
	for i := range data {
		data[i] = 'x'
	}
	got, err := Encode(QRCode{Data: string(data), Size: 1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// 300+3 = 303 = 0x012F → 2F 01 on the wire.
	marker := []byte{0x1D, 0x28, 0x6B, 0x2F, 0x01, 0x31, 0x50, 0x30}
	if !bytes.Contains(got, marker) {
		t.Errorf("store header with LE16 length not found in % X", got[:40])
	}
}

func TestEncodeQRCodeSizeRange(t *testing.T) {
	for _, size := range []int{0, -2, 9, 100} {
		buf, err := Encode(QRCode{Data: "x", Size: size})
		if !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("size=%d: err = %v, want ErrInvalidParameter", size, err)
		}
		if buf != nil {
			t.Errorf("size=%d: got bytes on failed encode", size)
		}
	}
	for size := 1; size <= 8; size++ {
		if _, err := Encode(QRCode{Data: "x", Size: size}); err != nil {
			t.Errorf("size=%d: unexpected error %v", size, err)
		}
	}
}

func TestEncodeQRCodePayloadBound(t *testing.T) {
	big := make([]byte, qrMaxPayload+1)
	buf, err := Encode(QRCode{Data: string(big), Size: 4})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("err = %v, want ErrPayloadTooLarge", err)
	}
	if buf != nil {
		t.Error("got bytes on failed encode")
	}

	exact := make([]byte, qrMaxPayload)
	if _, err := Encode(QRCode{Data: string(exact), Size: 4}); err != nil {
		t.Errorf("payload at bound: unexpected error %v", err)
	}
}

func TestParseEnums(t *testing.T) {
	if a, err := ParseAlignment("center"); err != nil || a != AlignCenter {
		t.Errorf("ParseAlignment(center) = %v, %v", a, err)
	}
	if _, err := ParseAlignment("diagonal"); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("ParseAlignment(diagonal) err = %v", err)
	}
	if s, err := ParseFontSize(""); err != nil || s != FontSizeNormal {
		t.Errorf("ParseFontSize(\"\") = %v, %v", s, err)
	}
	if s, err := ParseSymbology("ean13"); err != nil || s != SymbologyEAN13 {
		t.Errorf("ParseSymbology(ean13) = %v, %v", s, err)
	}
	if _, err := ParseSymbology("CODE93"); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("ParseSymbology(CODE93) err = %v", err)
	}
}
