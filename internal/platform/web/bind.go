package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	perr "starchart/internal/platform/errors"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entrans "github.com/go-playground/validator/v10/translations/en"
)

// validatorSvc holds a singleton validator and translator
type validatorSvc struct {
	validate *validator.Validate
	trans    ut.Translator
}

var (
	vOnce sync.Once
	vSvc  *validatorSvc
)

func validatorGet() *validatorSvc {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())

		// prefer json tag names in messages
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})

		_ = entrans.RegisterDefaultTranslations(v, trans)
		vSvc = &validatorSvc{validate: v, trans: trans}
	})
	return vSvc
}

// Validate runs struct validation and maps failures to a validation error
func Validate(v any) error {
	svc := validatorGet()
	err := svc.validate.Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if errors.As(err, &ves) {
		msgs := make([]string, 0, len(ves))
		for _, fe := range ves {
			msgs = append(msgs, fe.Translate(svc.trans))
		}
		return perr.Validationf("%s", strings.Join(msgs, "; "))
	}
	return perr.Validationf("invalid payload")
}

// ParseJSON decodes the request body into T, validates it, and maps failures
// to project errors. Unknown fields are rejected; bodies are capped at 1MB
func ParseJSON[T any](r *http.Request) (T, error) {
	var in T

	body := http.MaxBytesReader(nil, r.Body, 1<<20)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&in); err != nil {
		if errors.Is(err, io.EOF) {
			return in, perr.InvalidArgf("empty request body")
		}
		return in, perr.InvalidArgf("malformed json: %v", err)
	}
	if dec.More() {
		return in, perr.InvalidArgf("trailing data after json body")
	}
	if err := Validate(in); err != nil {
		return in, err
	}
	return in, nil
}
