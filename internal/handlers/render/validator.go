package render

import (
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/newsdesk/internal/models"
)

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("city", validateCity)
	_ = validate.RegisterValidation("datestr", validateDate)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

// Case-insensitive match against supported epaper cities
func validateCity(fl validator.FieldLevel) bool {
	city := strings.TrimSpace(fl.Field().String())
	return slices.ContainsFunc(models.Cities, func(c string) bool { return strings.EqualFold(c, city) })
}

// Calendar date as YYYY-MM-DD
func validateDate(fl validator.FieldLevel) bool {
	_, err := time.Parse(time.DateOnly, fl.Field().String())
	return err == nil
}
