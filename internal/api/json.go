package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"daimaescape/internal/models"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ErrorResponse is the body of every failed request. Input echoes the
// submitted form so a client can re-populate it.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Input any    `json:"input,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// readJSON decodes a single JSON object, rejecting unknown fields.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if decoder.More() {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}

// statusFor maps a booking error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidDateRange),
		errors.Is(err, models.ErrDateInPast),
		errors.Is(err, models.ErrCapacityExceeded),
		errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrRoomUnavailable),
		errors.Is(err, models.ErrNotCancellable),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, models.ErrReferenceGenerationExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the guest-facing text for err. Internal errors are not
// exposed.
func messageFor(err error) string {
	switch {
	case errors.Is(err, models.ErrRoomUnavailable):
		return "Sorry, this room is not available for the selected dates. Please choose different dates."
	case errors.Is(err, models.ErrReferenceGenerationExhausted):
		return "We could not complete your booking right now. Please try again."
	case errors.Is(err, models.ErrNotFound):
		return "Not found."
	case statusFor(err) == http.StatusInternalServerError:
		return "An error occurred while processing your request."
	}
	return err.Error()
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error, input any) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, ErrorResponse{
		Error: messageFor(err),
		Code:  models.ErrorCode(err),
		Input: input,
	})
}

// validationMessage turns validator errors into one readable line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be a valid email address")
		case "min", "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "max", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		case "datetime":
			msgs = append(msgs, field+" must be a date in YYYY-MM-DD format")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}
