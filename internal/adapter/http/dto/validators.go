package dto

import (
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"customer-wallet-ledger/pkg/money"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Payment references are bank or receipt numbers: letters, digits and a few separators.
var safeRefRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\./#]+$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("decimal_amount", validateDecimalAmount)
		_ = v.RegisterValidation("currency", validateCurrency)
		_ = v.RegisterValidation("safe_ref", validateSafeRef)
	}
}

// validateDecimalAmount accepts plain decimal strings with at most two fractional digits.
// Sign and range checks belong to the services.
func validateDecimalAmount(fl validator.FieldLevel) bool {
	_, err := money.Parse(fl.Field().String())
	return err == nil
}

func validateCurrency(fl validator.FieldLevel) bool {
	return money.ValidCurrency(fl.Field().String())
}

func validateSafeRef(fl validator.FieldLevel) bool {
	return safeRefRe.MatchString(fl.Field().String())
}

// SanitizeStruct trims whitespace and drops control characters (newline and
// tab excepted) from every exported string field (including *string) of a
// struct pointer. Text is stored as typed; escaping happens when it is rendered.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			if elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String()))
			}
		}
	}
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
