package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/stemsi/livesession-backend/internal/model"
	"github.com/stemsi/livesession-backend/internal/service"
)

var (
	// trans is the singleton English translator for validation errors.
	trans ut.Translator
	once  sync.Once
)

// customTags are the domain validations and their English messages.
var customTags = []struct {
	tag     string
	fn      govalidator.Func
	message string
}{
	{"joincode", validJoinCode, "{0} must be a 6 character join code"},
	{"phase", validPhase, "{0} must be one of waiting, inquiry, video, quiz, completed"},
	{"choiceletter", validChoiceLetter, "{0} must be one of A, B, C, D"},
}

// Setup registers the validator with English translations and the custom
// tags on Gin's binding engine. Safe to call more than once.
func Setup() {
	once.Do(func() {
		v, ok := binding.Validator.Engine().(*govalidator.Validate)
		if !ok {
			return
		}

		// Use JSON tag name for field names in error messages.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")
		en_translations.RegisterDefaultTranslations(v, trans)

		for _, ct := range customTags {
			ct := ct
			_ = v.RegisterValidation(ct.tag, ct.fn)
			_ = v.RegisterTranslation(ct.tag, trans,
				func(u ut.Translator) error { return u.Add(ct.tag, ct.message, true) },
				func(u ut.Translator, fe govalidator.FieldError) string {
					msg, _ := u.T(ct.tag, fe.Field())
					return msg
				},
			)
		}
	})
}

func validJoinCode(fl govalidator.FieldLevel) bool {
	return service.ValidJoinCode(fl.Field().String())
}

func validPhase(fl govalidator.FieldLevel) bool {
	return model.Phase(fl.Field().String()).Valid()
}

func validChoiceLetter(fl govalidator.FieldLevel) bool {
	switch strings.ToUpper(strings.TrimSpace(fl.Field().String())) {
	case "A", "B", "C", "D":
		return true
	}
	return false
}

// TranslateErrors takes a binding/validation error and returns a map of
// field path → human-readable error message. Nested fields keep their
// path, e.g. "content.questions[1].choices". If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fieldPath(fe)] = fe.Translate(trans)
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// fieldPath drops the root struct name from the error namespace.
func fieldPath(fe govalidator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
