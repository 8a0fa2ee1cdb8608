// Package validator holds the Brazilian document checks (CPF, CNPJ) and
// their go-playground bindings.
package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
)

// Digits strips everything but 0-9, so "123.456.789-09" and "12345678909"
// are the same document.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allSame(d string) bool {
	return strings.Count(d, d[:1]) == len(d)
}

// checkDigit computes a mod-11 verification digit over d with weights
// counting down from the first weight, wrapping at 2 when wrap > 0.
func checkDigit(d string, first, wrap int) byte {
	sum, w := 0, first
	for i := 0; i < len(d); i++ {
		sum += int(d[i]-'0') * w
		w--
		if wrap > 0 && w < 2 {
			w = wrap
		}
	}
	r := sum % 11
	if r < 2 {
		return '0'
	}
	return byte('0' + 11 - r)
}

// ValidCPF checks length and both verification digits.
func ValidCPF(s string) bool {
	d := Digits(s)
	if len(d) != 11 || allSame(d) {
		return false
	}
	return checkDigit(d[:9], 10, 0) == d[9] && checkDigit(d[:10], 11, 0) == d[10]
}

// ValidCNPJ checks length and both verification digits.
func ValidCNPJ(s string) bool {
	d := Digits(s)
	if len(d) != 14 || allSame(d) {
		return false
	}
	return checkDigit(d[:12], 5, 9) == d[12] && checkDigit(d[:13], 6, 9) == d[13]
}

// Register installs the cpf and cnpj tags on v.
func Register(v *validator.Validate) error {
	if err := v.RegisterValidation("cpf", func(fl validator.FieldLevel) bool {
		return ValidCPF(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("failed to register cpf validator: %w", err)
	}
	if err := v.RegisterValidation("cnpj", func(fl validator.FieldLevel) bool {
		return ValidCNPJ(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("failed to register cnpj validator: %w", err)
	}
	return nil
}

var messages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email",
	"min":      "is too short",
	"max":      "is too long",
	"uuid":     "must be a valid id",
	"cpf":      "must be a valid CPF",
	"cnpj":     "must be a valid CNPJ",
	"oneof":    "has an unsupported value",
}

// FromBinding turns a gin binding error into a validation AppError naming
// the first offending field. Other errors become a bad request.
func FromBinding(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg, ok := messages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		return apperrors.NewValidation(fe.Field(), fmt.Sprintf("%s %s", fe.Field(), msg))
	}
	return apperrors.NewBadRequest("invalid request body", err)
}
