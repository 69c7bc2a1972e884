package handlers

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Plates like "ABC-1", "KDA 123A" or "B1234XYZ"
var vehiclePattern = regexp.MustCompile(`^[A-Za-z0-9]+([ -]?[A-Za-z0-9]+)*$`)

var vehicleValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	v := strings.TrimSpace(fl.Field().String())
	return len(v) <= 16 && vehiclePattern.MatchString(v)
}

// RegisterValidators adds the custom binding rules used by request bodies
func RegisterValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("vehicle", vehicleValidatorFunc)
	}
}
