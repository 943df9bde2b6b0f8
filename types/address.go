package types

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Address identifies a principal: a sender, a payout agent, the admin,
// the custody account or a fee withdrawal destination.
type Address string

var principalPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:@\-]*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("principal", func(fl validator.FieldLevel) bool { //nolint:errcheck // static tag
		return principalPattern.MatchString(fl.Field().String())
	})
	return v
}

// Validator returns the shared validator instance, with the "principal"
// tag registered. Config structs across remit validate through it.
func Validator() *validator.Validate { return validate }

// Validate performs the address sanity check applied before value moves:
// non-empty, at most 128 characters, printable principal characters only.
func (a Address) Validate() error {
	return validate.Var(string(a), "required,max=128,principal")
}

// String implements fmt.Stringer.
func (a Address) String() string { return string(a) }

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool { return a == "" }
