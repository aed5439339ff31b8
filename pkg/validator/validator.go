package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator validates structs using `validate` tags.
type Validator interface {
	Validate(interface{}) error
	Var(value interface{}, rules string) error
}

type structValidator struct {
	v *validator.Validate
}

func New() Validator {
	return &structValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (s *structValidator) Validate(obj interface{}) error {
	if err := s.v.Struct(obj); err != nil {
		var verrs validator.ValidationErrors
		if ok := isValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("field %s failed on %s", f.Field(), f.Tag())
		}
		return err
	}
	return nil
}

func (s *structValidator) Var(value interface{}, rules string) error {
	return s.v.Var(value, rules)
}

func isValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}
