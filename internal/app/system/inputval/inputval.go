// Package inputval validates request DTOs with go-playground/validator.
//
// Field names in messages come from json tags so clients can map an error
// back to the field they sent.
package inputval

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/maishoras/maishoras/internal/app/system/apperr"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	hhmm = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

func init() {
	validate = validator.New()

	english := en.New()
	uni := ut.New(english, english)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	// maxbytes bounds the encoded length, for values like bcrypt passwords
	// whose limit is in bytes rather than characters.
	_ = validate.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= n
	})
	_ = validate.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return IsValidTimeOfDay(fl.Field().String())
	})
	_ = validate.RegisterValidation("ymd", func(fl validator.FieldLevel) bool {
		return IsValidDate(fl.Field().String())
	})
	_ = validate.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		return IsValidObjectID(fl.Field().String())
	})
}

// FieldError is one failed constraint.
type FieldError struct {
	Field   string
	Message string
}

// Result collects the failed constraints in struct field order.
type Result struct {
	Errors []FieldError
}

// HasErrors reports whether any constraint failed.
func (r *Result) HasErrors() bool { return len(r.Errors) > 0 }

// First returns the first message, or "".
func (r *Result) First() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// Err converts the first failure into an apperr validation error.
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return apperr.Validation(r.Errors[0].Field, r.First())
}

// Validate runs the struct's validate tags.
func Validate(v any) *Result {
	res := &Result{}
	err := validate.Struct(v)
	if err == nil {
		return res
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		res.Errors = append(res.Errors, FieldError{Message: err.Error()})
		return res
	}
	for _, fe := range verrs {
		res.Errors = append(res.Errors, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return res
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required.", field)
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters.", field, fe.Param())
		}
	case "maxbytes":
		return fmt.Sprintf("%s is too long.", field)
	case "email":
		return "A valid email address is required."
	case "hhmm":
		return fmt.Sprintf("%s must be a time of day in HH:MM format.", field)
	case "ymd":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD format.", field)
	case "objectid":
		return fmt.Sprintf("%s must be a valid id.", field)
	}
	return fe.Translate(translator)
}

// IsValidTimeOfDay reports whether s is a 24h HH:MM time.
func IsValidTimeOfDay(s string) bool {
	return hhmm.MatchString(s)
}

// IsValidDate reports whether s is a YYYY-MM-DD calendar date.
func IsValidDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// IsValidObjectID reports whether s is a hex ObjectID.
func IsValidObjectID(s string) bool {
	return primitive.IsValidObjectID(s)
}
