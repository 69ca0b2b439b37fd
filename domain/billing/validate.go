package billing

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one rejected field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError is returned when a settings update is rejected before any
// collaborator is contacted.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid payment settings"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Reason
	}
	return "invalid payment settings: " + strings.Join(parts, "; ")
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Reason: reason}}}
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validator checks settings updates against a price catalog.
// It is safe for concurrent use.
type Validator struct {
	catalog  PriceCatalog
	validate *validator.Validate
}

// NewValidator creates a validator bound to catalog.
func NewValidator(catalog PriceCatalog) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fieldPath[fld.Name]
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("storage_price", func(fl validator.FieldLevel) bool {
		return catalog.IsAllowed(fl.Field().String())
	})
	return &Validator{catalog: catalog, validate: v}
}

// fieldPath names the untagged update fields in their wire form.
var fieldPath = map[string]string{
	"PaymentMethod": "paymentMethod",
	"Storage":       "subscription",
	"Desired":       "storage",
}

// Catalog returns the catalog the validator checks prices against.
func (v *Validator) Catalog() PriceCatalog {
	return v.catalog
}

// Validate returns a *ValidationError if u cannot be applied.
func (v *Validator) Validate(u SettingsUpdate) error {
	err := v.validate.Struct(u)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []FieldError{{Field: "", Reason: err.Error()}}}
	}

	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:  trimRoot(fe.Namespace()),
			Reason: reasonFor(fe, v.catalog),
		})
	}
	return out
}

// trimRoot drops the struct type name validator prefixes namespaces with.
func trimRoot(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func reasonFor(fe validator.FieldError, catalog PriceCatalog) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "storage_price":
		return fmt.Sprintf("%q is not an allowed price (allowed: %s)",
			fe.Value(), strings.Join(catalog.Names(), ", "))
	default:
		return "failed " + fe.Tag() + " check"
	}
}
