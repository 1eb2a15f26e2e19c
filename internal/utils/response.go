// Package utils holds the JSON envelope every HTTP response is wrapped in.
package utils

import (
	"encoding/json"
	"net/http"
	"time"

	"ms-ordering/internal/errs"
)

type APIResponse struct {
	Success   bool                         `json:"success"`
	Message   string                       `json:"message"`
	Data      interface{}                  `json:"data,omitempty"`
	Error     string                       `json:"error,omitempty"`
	Fields    map[string][]errs.FieldError `json:"fields,omitempty"`
	Timestamp time.Time                    `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now(),
	}
}

// ValidationResponse reports every failed field of v.
func ValidationResponse(v *errs.ValidationError) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   "Validation failed",
		Error:     v.Error(),
		Fields:    v.Fields,
		Timestamp: time.Now(),
	}
}

// WriteJSON writes resp with status.
func WriteJSON(w http.ResponseWriter, status int, resp APIResponse) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(resp)
}
