// handlers - обработчики админ-API поверх service.Service.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/pribylovaa/go-news-digest/internal/service"
)

// ReadyFunc проверяет готовность зависимостей (хранилище и т.п.).
type ReadyFunc func(ctx context.Context) error

// Handlers агрегирует зависимости обработчиков.
type Handlers struct {
	svc   *service.Service
	ready ReadyFunc
}

// New создаёт обработчики. ready может быть nil - тогда /healthz всегда 200.
func New(svc *service.Service, ready ReadyFunc) *Handlers {
	return &Handlers{svc: svc, ready: ready}
}

// writeJSON - ответ JSON с нужным Content-Type.
// Ошибки выводятся через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict - строгий JSON-декодер: неизвестные поля запрещены.
// Ошибка разбора оборачивается в service.ErrInvalidArgument.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty body: %w", service.ErrInvalidArgument)
		}
		return fmt.Errorf("decode body: %w: %w", service.ErrInvalidArgument, err)
	}

	return nil
}

// queryLimit читает ?limit=. Отсутствие - 0 (значение по умолчанию сервиса).
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit %q: %w", raw, service.ErrInvalidArgument)
	}

	return n, nil
}
