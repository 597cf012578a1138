// Package slipqr reads the QR codes printed on Thai transfer slips.
//
// Two payloads are recognized. A verification code carries the sending bank and
// the transaction reference of a completed transfer; a PromptPay code carries the
// receiving proxy (phone, national ID or e-wallet) and optionally an amount. Both
// are EMVCo-style tag/length/value strings closed by a CRC-16 field.
package slipqr

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Kinds of decoded payloads
const (
	KindVerification = "verification"
	KindPromptPay    = "promptpay"
	KindOther        = "other"
)

// ErrNotFound is returned when the image holds no readable QR code
var ErrNotFound = errors.New("no QR code found")

// promptPayAID is the application ID of PromptPay merchant account info
const promptPayAID = "A000000677010111"

// bankCodes maps interbank numeric codes to the codes used by the entity table
var bankCodes = map[string]string{
	"002": "BBL",
	"004": "KBNK",
	"006": "KTB",
	"011": "TTB",
	"014": "SCB",
	"025": "BAY",
	"030": "GSB",
	"065": "TTB",
}

// Code is a decoded slip QR payload
type Code struct {
	Raw  string `json:"raw"`
	Kind string `json:"kind"`

	// Bank is the entity code of the sending bank, when known
	Bank     string `json:"bank,omitempty"`
	BankID   string `json:"bank_id,omitempty"`
	TransRef string `json:"trans_ref,omitempty"`

	PromptPayID string `json:"promptpay_id,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Country     string `json:"country,omitempty"`

	ValidCRC bool `json:"valid_crc"`
}

// Field is one tag/length/value entry
type Field struct {
	Tag   string
	Value string
}

// Decode finds and parses a QR code in img
func Decode(img image.Image) (*Code, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("failed to binarize image: %w", err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		var notFound gozxing.NotFoundException
		if errors.As(err, &notFound) {
			return nil, ErrNotFound
		}
		// checksum and format failures mean there is no usable code either
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	return Parse(result.GetText()), nil
}

// Parse classifies a raw payload. Payloads that are not valid TLV come back as KindOther.
func Parse(raw string) *Code {
	code := &Code{Raw: raw, Kind: KindOther}

	fields, err := ParseTLV(raw)
	if err != nil {
		return code
	}

	for _, f := range fields {
		switch f.Tag {
		case "00":
			// payload format indicator "01" in PromptPay, nested fields in verification codes
			if sub, err := ParseTLV(f.Value); err == nil && len(f.Value) > 2 {
				code.Kind = KindVerification
				for _, s := range sub {
					switch s.Tag {
					case "01":
						code.BankID = s.Value
						code.Bank = bankCodes[s.Value]
					case "02":
						code.TransRef = s.Value
					}
				}
			}
		case "29", "30":
			if id, ok := promptPayTarget(f.Value); ok {
				code.Kind = KindPromptPay
				code.PromptPayID = id
			}
		case "54":
			code.Amount = f.Value
		case "51", "58":
			code.Country = f.Value
		case "63", "91":
			code.ValidCRC = checkCRC(raw, f.Tag, f.Value)
		}
	}
	return code
}

// promptPayTarget returns the proxy ID of a PromptPay merchant account field
func promptPayTarget(value string) (string, bool) {
	sub, err := ParseTLV(value)
	if err != nil {
		return "", false
	}

	isPromptPay := false
	id := ""
	for _, s := range sub {
		switch s.Tag {
		case "00":
			isPromptPay = s.Value == promptPayAID || strings.HasPrefix(s.Value, "A00000067701")
		case "01", "02", "03":
			if id == "" {
				id = normalizeProxy(s.Value)
			}
		}
	}
	return id, isPromptPay && id != ""
}

// normalizeProxy turns "0066812345678" into the local form "0812345678"
func normalizeProxy(id string) string {
	if len(id) == 13 && strings.HasPrefix(id, "0066") {
		return "0" + id[4:]
	}
	return id
}

// ParseTLV splits s into two-digit tag, two-digit length, value entries
func ParseTLV(s string) ([]Field, error) {
	var fields []Field
	for i := 0; i < len(s); {
		if i+4 > len(s) {
			return nil, fmt.Errorf("truncated field header at %d", i)
		}
		tag := s[i : i+2]
		n, err := strconv.Atoi(s[i+2 : i+4])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid length at %d", i+2)
		}
		if _, err := strconv.Atoi(tag); err != nil {
			return nil, fmt.Errorf("invalid tag %q", tag)
		}
		end := i + 4 + n
		if end > len(s) {
			return nil, fmt.Errorf("field %s overruns payload", tag)
		}
		fields = append(fields, Field{Tag: tag, Value: s[i+4 : end]})
		i = end
	}
	if len(fields) == 0 {
		return nil, errors.New("empty payload")
	}
	return fields, nil
}

// checkCRC verifies the trailing CRC field. The checksum covers the payload up to
// and including the CRC tag and length.
func checkCRC(raw, tag, value string) bool {
	idx := len(raw) - 8
	if idx < 0 || raw[idx:idx+4] != tag+"04" {
		return false
	}
	return strings.EqualFold(fmt.Sprintf("%04X", CRC16(raw[:idx+4])), value)
}

// CRC16 computes CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF)
func CRC16(s string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(s); i++ {
		crc ^= uint16(s[i]) << 8
		for b := 0; b < 8; b++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
