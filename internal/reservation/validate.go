package reservation

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/playspot/internal/model"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the custom rules used by
// customer payloads registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return validPhone(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// validPhone accepts 7 to 15 digits once spaces, dashes, dots,
// parentheses and a leading plus are removed.
func validPhone(s string) bool {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+")
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 7 && digits <= 15
}

// NormalizeCustomer trims the submitted fields.
func NormalizeCustomer(c model.Customer) model.Customer {
	return model.Customer{Name: strings.TrimSpace(c.Name), Phone: strings.TrimSpace(c.Phone)}
}

// ValidateCustomer checks c and converts validator failures into a
// ValidationError.
func ValidateCustomer(c model.Customer) error {
	return ValidateStruct(c)
}

// ValidateStruct runs the shared validator over any tagged struct.
func ValidateStruct(i any) error {
	return toValidationError(Validator().Struct(i))
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &ValidationError{Fields: map[string]string{"_": err.Error()}}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = message(fe)
	}
	return &ValidationError{Fields: fields}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "phone":
		return "must be a valid phone number"
	default:
		return "is invalid"
	}
}
