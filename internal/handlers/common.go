package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

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

type validationErrorResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required", fe.Field())
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address", fe.Field())
	case "min":
		return fmt.Sprintf("The %s field must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("The %s field must not exceed %s characters", fe.Field(), fe.Param())
	case "eqfield":
		return fmt.Sprintf("The %s field must match %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("The %s field is invalid", fe.Field())
	}
}

// decodeAndValidate reads a JSON body into dst and validates it. On failure
// it writes the response and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return false
		}
		writeValidationErrors(w, verrs)
		return false
	}
	return true
}

func writeValidationErrors(w http.ResponseWriter, verrs validator.ValidationErrors) {
	resp := validationErrorResponse{Message: "The given data was invalid", Errors: map[string]string{}}
	for _, fe := range verrs {
		resp.Errors[fe.Field()] = validationMessage(fe)
	}
	writeJSON(w, http.StatusUnprocessableEntity, resp)
}

func writeFieldError(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, validationErrorResponse{
		Message: "The given data was invalid",
		Errors:  map[string]string{field: msg},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func idParam(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}
