// Package intake turns a job submission into a validated, identified Job.
package intake

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"scenecap/internal/models"
	"scenecap/internal/pkg/errors"
)

// Request is the job submission body. Unknown fields are ignored.
type Request struct {
	URL                 string                      `json:"url" validate:"required"`
	OrderSpecifications []models.OrderSpecification `json:"orderSpecifications" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Parse decodes and validates a submission and mints the job id. It has no
// side effects; an invalid body never gets an id.
func Parse(r io.Reader) (*models.Job, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, decodeError(err)
	}
	req.URL = strings.TrimSpace(req.URL)

	if err := validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	return models.NewJob(NewJobID(), req.URL, req.OrderSpecifications), nil
}

// NewJobID returns a random (v4) UUID.
func NewJobID() string {
	return uuid.NewString()
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &typeErr) && typeErr.Field != "" {
		if typeErr.Field == "orderSpecifications" {
			return errors.ValidationField(typeErr.Field, "orderSpecifications must be an array")
		}
		return errors.ValidationField(typeErr.Field,
			fmt.Sprintf("%s must be of type %s", typeErr.Field, typeErr.Type.String()))
	}
	if stderrors.Is(err, io.EOF) {
		return errors.Validation("request body is empty")
	}
	return errors.WrapWithCode(err, errors.CodeValidation, "intake.parse", "invalid json body")
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.WrapWithCode(err, errors.CodeValidation, "intake.validate", "invalid input data")
	}

	fe := fieldErrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		if fe.Kind() == reflect.Slice {
			return errors.ValidationField(field, field+" must be an array")
		}
		return errors.ValidationField(field, field+" is required")
	default:
		return errors.ValidationField(field, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
	}
}
