package service

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		validate = v
	})
	return validate
}

// Validate checks v against its validate tags and returns a *ValidationError
// naming every failing field by its JSON name.
func Validate(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	result := &ValidationError{}
	index := make(map[string]int)
	for _, fe := range verrs {
		property := jsonPath(fe.Namespace())
		i, ok := index[property]
		if !ok {
			i = len(result.Fields)
			index[property] = i
			result.Fields = append(result.Fields, FieldError{Property: property, Constraints: map[string]string{}})
		}
		result.Fields[i].Constraints[fe.Tag()] = constraintMessage(property, fe)
	}
	return result
}

// jsonPath drops the root struct name from a validator namespace.
func jsonPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func constraintMessage(property string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return property + " is required"
	case "notblank":
		return property + " should not be empty"
	case "min":
		return property + " must be at least " + fe.Param() + " characters"
	case "oneof":
		return property + " must be one of: " + fe.Param()
	default:
		return property + " failed " + fe.Tag() + " validation"
	}
}
