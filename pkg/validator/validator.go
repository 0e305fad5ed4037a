// Package validator registers domain validation rules with
// go-playground/validator.
package validator

import (
	"encoding/base64"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var kidRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-]{0,63}$`)

// isKid checks that a string is a usable key id: short, printable and safe
// to embed in envelopes and log lines.
func isKid(fl validator.FieldLevel) bool {
	return kidRe.MatchString(fl.Field().String())
}

// isAESKey checks that a string decodes from base64 to a valid AES key
// length (16, 24 or 32 bytes).
func isAESKey(fl validator.FieldLevel) bool {
	raw, err := base64.StdEncoding.DecodeString(fl.Field().String())
	if err != nil {
		return false
	}
	switch len(raw) {
	case 16, 24, 32:
		return true
	default:
		return false
	}
}

// RegisterCustomValidators registers custom validation functions with the validator.
func RegisterCustomValidators(validate *validator.Validate) error {
	if err := validate.RegisterValidation("kid", isKid); err != nil {
		return err
	}
	return validate.RegisterValidation("aeskey", isAESKey)
}
