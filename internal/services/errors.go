package services

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailRequired      = errors.New("email header is required")
	ErrForbidden          = errors.New("token does not belong to this user")
	ErrItemNotFound       = errors.New("item not found")
	ErrIDAllocation       = errors.New("could not allocate item id")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Type     string `json:"type"`
	Msg      string `json:"msg"`
	Path     string `json:"path"`
	Location string `json:"location"`
}

// ValidationError is returned when request input fails validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Msg)
	}
	return strings.Join(msgs, "; ")
}

// InvalidField builds a ValidationError for a single field at location
// ("body" or "query").
func InvalidField(location, path, msg string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Type: "field", Msg: msg, Path: path, Location: location}}}
}

// UploadError is returned when an attachment cannot be accepted.
type UploadError struct {
	Reason string
	Err    error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return "file upload failed: " + e.Reason + ": " + e.Err.Error()
	}
	return "file upload failed: " + e.Reason
}

func (e *UploadError) Unwrap() error { return e.Err }

// newValidator returns a validator that reports fields by their JSON name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs v over s and converts failures into a ValidationError.
// messages maps a JSON field name to the text reported for it; unknown
// fields get a generic message.
func validateStruct(v *validator.Validate, s interface{}, messages map[string]string) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		msg, ok := messages[fe.Field()]
		if !ok {
			msg = "Invalid value for " + fe.Field()
		}
		out.Fields = append(out.Fields, FieldError{
			Type:     "field",
			Msg:      msg,
			Path:     fe.Field(),
			Location: "body",
		})
	}
	return out
}
