package handoff

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"oralplatinum/cobranca/internal/core/contact"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// contact ids are raw JSON tokens; "" and null both mean absent.
	_ = v.RegisterValidation("contactid", func(fl validator.FieldLevel) bool {
		id, ok := fl.Field().Interface().(contact.ID)
		return ok && !id.IsZero()
	})
	return v
}

// Validate checks a single record against its validation tags and reports
// the offending fields in one error.
func Validate(record any) error {
	err := validate.Struct(record)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid record: %s", strings.Join(fields, ", "))
}
