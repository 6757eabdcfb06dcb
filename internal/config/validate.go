package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared; validator.Validate caches struct metadata and is safe
// for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Path elements are joined with dots for display and on the command line.
	_ = v.RegisterValidation("pathelem", func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		return ok && !strings.Contains(s, ".")
	})
	return v
}

// Validate checks the structure of the configuration. Semantic checks against
// the engine's parameters produce ConfigurationErrors instead.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		msgs := make([]error, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Errorf("%s: failed %q validation", fieldPath(fe), fe.Tag()))
		}
		return fmt.Errorf("invalid configuration: %w", errors.Join(msgs...))
	}
	for i, p := range c.Parameters {
		for _, e := range p.Path {
			if err := validate.Var(e, "pathelem"); err != nil {
				return fmt.Errorf("invalid configuration: parameters[%d].path: element %q contains a dot", i, e)
			}
		}
		if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
			return fmt.Errorf("invalid configuration: parameters[%d]: min %g exceeds max %g", i, *p.Min, *p.Max)
		}
	}
	return nil
}

// fieldPath strips the root struct name from a validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
