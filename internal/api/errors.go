package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nmorelli/go-chatserver/internal/chat"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewMethodNotAllowedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusMethodNotAllowed,
		Message:    lower(http.StatusText(http.StatusMethodNotAllowed)),
	}
}

// fromChatError translates store and roster failures into HTTP errors.
// Messages of client-caused failures are passed through verbatim.
func fromChatError(err error) *ApiError {
	var (
		validationErr    *chat.ValidationError
		authorizationErr *chat.AuthorizationError
		notFoundErr      *chat.NotFoundError
	)

	switch {
	case errors.As(err, &validationErr):
		return &ApiError{StatusCode: http.StatusBadRequest, Message: validationErr.Error()}
	case errors.As(err, &authorizationErr):
		return &ApiError{StatusCode: http.StatusForbidden, Message: authorizationErr.Error()}
	case errors.As(err, &notFoundErr):
		return &ApiError{StatusCode: http.StatusNotFound, Message: notFoundErr.Error()}
	default:
		return NewInternalServerError(err)
	}
}
