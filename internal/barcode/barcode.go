// Package barcode validates product barcodes. Structural validation bounds
// the digit count to 8-14; the EAN-13 checksum is only enforced for 13-digit
// codes. Codes of length 8, 12 or 14 are accepted on structural grounds alone
// (deliberate permissiveness: upstream data carries EAN-8, UPC-A and ITF-14
// codes whose check digits are not validated here).
package barcode

import "errors"

var (
	// ErrInvalidFormat means the input does not sanitize to 8-14 digits.
	ErrInvalidFormat = errors.New("barcode must be 8 to 14 digits")
	// ErrInvalidChecksum means a 13-digit code failed the EAN-13 check digit.
	ErrInvalidChecksum = errors.New("barcode failed EAN-13 checksum")
)

const (
	// MinLength and MaxLength bound the accepted digit count.
	MinLength = 8
	MaxLength = 14

	ean13Length = 13
)

// Sanitize strips whitespace and every other non-digit character.
func Sanitize(raw string) string {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			out = append(out, raw[i])
		}
	}
	return string(out)
}

// ValidateStructure checks that raw sanitizes to 8-14 digits. It is the check
// applied to bulk-ingested rows, where the checksum is intentionally not
// enforced.
func ValidateStructure(raw string) error {
	code := Sanitize(raw)
	if len(code) < MinLength || len(code) > MaxLength {
		return ErrInvalidFormat
	}
	return nil
}

// Validate checks the structural format and, for 13-digit codes, the EAN-13
// checksum. It never touches any external state.
func Validate(raw string) error {
	if err := ValidateStructure(raw); err != nil {
		return err
	}
	code := Sanitize(raw)
	if len(code) != ean13Length {
		return nil
	}
	if Checksum(code[:ean13Length-1]) != int(code[ean13Length-1]-'0') {
		return ErrInvalidChecksum
	}
	return nil
}

// Checksum computes the EAN-13 check digit for the 12 leading digits. Digits
// at even indexes weigh 1, odd indexes weigh 3.
func Checksum(digits string) int {
	sum := 0
	for i := 0; i < len(digits) && i < 12; i++ {
		d := int(digits[i] - '0')
		if i%2 == 0 {
			sum += d
		} else {
			sum += 3 * d
		}
	}
	return (10 - sum%10) % 10
}
