// apierrors стандартизирует ответы об ошибках админ-API.
// На вход принимается ошибка сервисного слоя, на выход - HTTP-статус
// и короткое безопасное сообщение без деталей реализации.
package apierrors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pribylovaa/go-news-digest/internal/service"
)

// StatusClientClosedRequest - нестандартный код "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// ErrUnauthenticated - запрос без действительного токена администратора.
var ErrUnauthenticated = errors.New("unauthenticated")

// APIError - единый формат ошибки.
// Code - стабильный машиночитаемый код, Message - безопасное описание.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse - корневой объект ответа с ошибкой.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP сопоставляет ошибку сервиса HTTP-статусу:
//   - ErrInvalidArgument -> 400
//   - ErrUnauthenticated -> 401
//   - ErrNotFound -> 404
//   - ErrCycleInProgress -> 409
//   - context.Canceled -> 499
//   - ErrNotConfigured -> 501
//   - ErrUnavailable -> 503
//   - context.DeadlineExceeded -> 504
//   - прочее и nil -> 500
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := classify(err)

	return status, ErrorResponse{Error: APIError{Code: code, Message: msg}}
}

func classify(err error) (int, string, string) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal", "internal error"
	case errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument", "invalid argument"
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated", "unauthenticated"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, service.ErrCycleInProgress):
		return http.StatusConflict, "cycle_in_progress", "cycle already in progress"
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled", "canceled"
	case errors.Is(err, service.ErrNotConfigured):
		return http.StatusNotImplemented, "not_configured", "not configured"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"
	case errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable", "service unavailable"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}

// WriteError пишет статус и тело ошибки; request_id берётся из X-Request-Id.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
