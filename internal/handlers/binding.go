package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sjperalta/tesoreria-api/internal/apperrors"
	"github.com/sjperalta/tesoreria-api/internal/models"
)

// BindNestedOrFlat binds the request body to obj. A body shaped like
// {"<key>": {...}} binds the nested object, anything else binds as a flat object.
// The decoded value is then checked against its validate tags.
func BindNestedOrFlat(c *gin.Context, key string, obj interface{}) error {
	var bodyBytes []byte
	if c.Request.Body != nil {
		bodyBytes, _ = io.ReadAll(c.Request.Body)
	}
	// Restore body for subsequent reads
	c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	if len(bytes.TrimSpace(bodyBytes)) == 0 {
		return apperrors.NewValidationError("body", "el cuerpo de la solicitud está vacío")
	}

	var nestedMap map[string]json.RawMessage
	if err := json.Unmarshal(bodyBytes, &nestedMap); err == nil {
		if val, ok := nestedMap[key]; ok {
			return decodeAndValidate(val, obj)
		}
	}

	return decodeAndValidate(bodyBytes, obj)
}

func decodeAndValidate(data []byte, obj interface{}) error {
	if err := json.Unmarshal(data, obj); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return apperrors.NewValidationError(typeErr.Field, "tipo de dato inválido")
		}
		return apperrors.NewValidationError("body", "JSON inválido")
	}
	return validateRequest(obj)
}

var requestValidator = newRequestValidator()

// newRequestValidator registers the decimal comparison tags dgt and dgte
// (greater than / greater or equal to the tag parameter), the money tag for
// amounts that fit a decimal(15,2) column, and reports fields by their JSON name.
func newRequestValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// validate decimals through their string form so field tags run on them
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("dgt", decimalComparison(func(d, limit decimal.Decimal) bool { return d.GreaterThan(limit) }))
	_ = v.RegisterValidation("dgte", decimalComparison(func(d, limit decimal.Decimal) bool { return d.GreaterThanOrEqual(limit) }))
	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && models.FitsMoneyColumn(d)
	})
	return v
}

func decimalComparison(cmp func(d, limit decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		limit, err := decimal.NewFromString(fl.Param())
		if err != nil {
			return false
		}
		return cmp(d, limit)
	}
}

// validateRequest runs the validate tags of obj and converts the first failure to a ValidationError
func validateRequest(obj interface{}) error {
	err := requestValidator.Struct(obj)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.NewValidationError("body", err.Error())
	}

	fe := verrs[0]
	return apperrors.NewValidationError(fe.Field(), validationMessage(fe))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "es requerido"
	case "dgt":
		return fmt.Sprintf("debe ser mayor a %s", fe.Param())
	case "dgte":
		return fmt.Sprintf("debe ser mayor o igual a %s", fe.Param())
	case "money":
		return "debe tener máximo 2 decimales y 13 dígitos enteros"
	case "max":
		return fmt.Sprintf("no puede exceder %s caracteres", fe.Param())
	case "datetime":
		return "debe tener el formato AAAA-MM-DD"
	case "oneof":
		return fmt.Sprintf("debe ser uno de: %s", fe.Param())
	default:
		return "es inválido"
	}
}
