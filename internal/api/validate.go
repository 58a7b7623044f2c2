package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"go-reports/internal/common/errs"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	// Report JSON field names, not Go field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidateRequest checks struct tags on a decoded request body and reports
// failures in the same shape as definition validation errors.
func ValidateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	var out errs.ValidationErrors
	for _, fe := range fieldErrs {
		out = append(out, errs.ValidationError{
			Field:   jsonPath(fe.Namespace()),
			Code:    fe.Tag(),
			Message: fmt.Sprintf("failed %q check", fe.Tag()),
		})
	}
	return out
}

// jsonPath drops the root struct name: "CreateScheduleRequest.recipient_emails[0]" -> "recipient_emails[0]".
func jsonPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
