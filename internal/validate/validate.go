package validate

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	engine *govalidator.Validate
	trans  ut.Translator
)

func init() {
	engine = govalidator.New()

	// Use JSON tag name for field names in error messages.
	engine.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(engine, trans)
}

// Struct validates v against its `validate` tags. Returns nil on success or a
// map of field name → human-readable message on failure.
func Struct(v any) map[string]string {
	err := engine.Struct(v)
	if err == nil {
		return nil
	}
	return TranslateErrors(err)
}

// TranslateErrors converts a validation error into a field → message map. A
// non-validation error comes back under the "detail" key.
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}

	fields["detail"] = err.Error()
	return fields
}
