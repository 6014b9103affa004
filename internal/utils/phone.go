package utils

import (
	"errors"
	"strings"
)

// CameroonCountryCode is prefixed to local numbers
const CameroonCountryCode = "237"

// ErrInvalidPhoneNumber is returned for numbers that are not Cameroonian mobile numbers
var ErrInvalidPhoneNumber = errors.New("invalid phone number")

// Network identifies the mobile operator owning a number range
type Network string

const (
	NetworkUnknown Network = ""
	NetworkMTN     Network = "MTN"
	NetworkOrange  Network = "ORANGE"
)

// NormalizePhoneNumber formats a phone number as a 237XXXXXXXXX MSISDN
func NormalizePhoneNumber(phone string) (string, error) {
	// Strip formatting characters
	var b strings.Builder
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')' || r == '+':
		default:
			return "", ErrInvalidPhoneNumber
		}
	}
	digits := b.String()

	digits = strings.TrimPrefix(digits, "00")
	if strings.HasPrefix(digits, CameroonCountryCode) && len(digits) == 12 {
		digits = digits[3:]
	}
	if len(digits) != 9 || digits[0] != '6' {
		return "", ErrInvalidPhoneNumber
	}
	return CameroonCountryCode + digits, nil
}

// LocalNumber returns the 9 digit national number of a normalized MSISDN
func LocalNumber(msisdn string) string {
	return strings.TrimPrefix(msisdn, CameroonCountryCode)
}

// DetectNetwork infers the operator from the national number range
func DetectNetwork(msisdn string) Network {
	local := LocalNumber(msisdn)
	if len(local) != 9 {
		return NetworkUnknown
	}
	switch {
	case strings.HasPrefix(local, "67"):
		return NetworkMTN
	case strings.HasPrefix(local, "69"):
		return NetworkOrange
	case strings.HasPrefix(local, "65"), strings.HasPrefix(local, "68"):
		// 650-654 and 680-684 are MTN, 655-659 and 685-689 Orange
		if local[2] <= '4' {
			return NetworkMTN
		}
		return NetworkOrange
	}
	return NetworkUnknown
}
