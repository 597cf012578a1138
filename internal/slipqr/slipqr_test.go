package slipqr

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

func tlv(tag, value string) string {
	return fmt.Sprintf("%s%02d%s", tag, len(value), value)
}

// withCRC closes payload with a CRC field under tag
func withCRC(payload, tag string) string {
	payload += tag + "04"
	return payload + fmt.Sprintf("%04X", CRC16(payload))
}

func verificationPayload(bank, ref string) string {
	inner := tlv("00", "000001") + tlv("01", bank) + tlv("02", ref)
	return withCRC(tlv("00", inner)+tlv("51", "TH"), "91")
}

func promptPayPayload(phone, amount string) string {
	account := tlv("00", promptPayAID) + tlv("01", phone)
	p := tlv("00", "01") + tlv("01", "12") + tlv("29", account) + tlv("53", "764")
	if amount != "" {
		p += tlv("54", amount)
	}
	return withCRC(p+tlv("58", "TH"), "63")
}

func TestCRC16(t *testing.T) {
	// standard check value for CRC-16/CCITT-FALSE
	if got := CRC16("123456789"); got != 0x29B1 {
		t.Errorf("CRC16(123456789) = %04X, want 29B1", got)
	}
}

func TestParseTLV(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"two fields", "0002AB0103xyz", 2, false},
		{"empty value", "0000", 1, false},
		{"empty", "", 0, true},
		{"truncated header", "000", 0, true},
		{"overrun", "0005AB", 0, true},
		{"non numeric length", "00XXAB", 0, true},
		{"non numeric tag", "AB02xy", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := ParseTLV(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTLV(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if len(fields) != tt.want {
				t.Errorf("ParseTLV(%q) = %d fields, want %d", tt.input, len(fields), tt.want)
			}
		})
	}
}

func TestParse_Verification(t *testing.T) {
	raw := verificationPayload("004", "014242082547BPM04988")
	code := Parse(raw)

	if code.Kind != KindVerification {
		t.Fatalf("Kind = %s, want %s", code.Kind, KindVerification)
	}
	if code.Bank != "KBNK" || code.BankID != "004" {
		t.Errorf("Bank = %s (%s), want KBNK (004)", code.Bank, code.BankID)
	}
	if code.TransRef != "014242082547BPM04988" {
		t.Errorf("TransRef = %s", code.TransRef)
	}
	if code.Country != "TH" {
		t.Errorf("Country = %s, want TH", code.Country)
	}
	if !code.ValidCRC {
		t.Error("ValidCRC = false, want true")
	}
}

func TestParse_PromptPay(t *testing.T) {
	code := Parse(promptPayPayload("0066812345678", "150.00"))

	if code.Kind != KindPromptPay {
		t.Fatalf("Kind = %s, want %s", code.Kind, KindPromptPay)
	}
	if code.PromptPayID != "0812345678" {
		t.Errorf("PromptPayID = %s, want 0812345678", code.PromptPayID)
	}
	if code.Amount != "150.00" {
		t.Errorf("Amount = %s, want 150.00", code.Amount)
	}
	if code.Bank != "" {
		t.Errorf("Bank = %s, want none", code.Bank)
	}
	if !code.ValidCRC {
		t.Error("ValidCRC = false, want true")
	}
}

func TestParse_BadCRC(t *testing.T) {
	raw := verificationPayload("014", "REF1")
	raw = raw[:len(raw)-4] + "0000"

	code := Parse(raw)
	if code.ValidCRC {
		t.Error("ValidCRC = true for a corrupted checksum")
	}
	if code.Bank != "SCB" {
		t.Errorf("Bank = %s, want SCB", code.Bank)
	}
}

func TestParse_Other(t *testing.T) {
	for _, raw := range []string{"https://example.com/pay", "hello", ""} {
		code := Parse(raw)
		if code.Kind != KindOther {
			t.Errorf("Parse(%q).Kind = %s, want %s", raw, code.Kind, KindOther)
		}
		if code.Raw != raw {
			t.Errorf("Parse(%q).Raw = %q", raw, code.Raw)
		}
	}
}

func TestParse_UnknownBank(t *testing.T) {
	code := Parse(verificationPayload("999", "REF"))
	if code.Kind != KindVerification {
		t.Fatalf("Kind = %s, want %s", code.Kind, KindVerification)
	}
	if code.Bank != "" || code.BankID != "999" {
		t.Errorf("Bank = %q (%s), want unmapped 999", code.Bank, code.BankID)
	}
}

// slipWithQR pastes a generated QR code onto a white slip-sized canvas
func slipWithQR(t *testing.T, contents string) image.Image {
	t.Helper()
	qr, err := qrcode.NewQRCodeWriter().Encode(contents, gozxing.BarcodeFormat_QR_CODE, 240, 240, nil)
	if err != nil {
		t.Fatalf("failed to encode QR: %v", err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, 600, 900))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	offset := image.Pt(340, 620)
	draw.Draw(canvas, qr.Bounds().Add(offset), qr, image.Point{}, draw.Src)
	return canvas
}

func TestDecode(t *testing.T) {
	raw := verificationPayload("002", "2024101912345678")
	code, err := Decode(slipWithQR(t, raw))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if code.Raw != raw {
		t.Errorf("Raw = %q, want %q", code.Raw, raw)
	}
	if code.Bank != "BBL" || !code.ValidCRC {
		t.Errorf("Decode() = %+v, want valid BBL code", code)
	}
}

func TestDecode_NoCode(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}

	if _, err := Decode(img); !errors.Is(err, ErrNotFound) {
		t.Errorf("Decode(blank) error = %v, want ErrNotFound", err)
	}
}
