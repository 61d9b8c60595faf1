// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON‑ответов об ошибках. Успешный ответ /data/endesa
// отдаётся массивом документов без обёртки.
package response

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator"
)

// Response описывает стандартную структуру JSON‑ответа сервера.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const (
	// StatusOK значение статуса для успешного ответа.
	StatusOK = "ok"
	// StatusReady значение статуса готовности сервиса.
	StatusReady = "ready"
	// StatusError значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

// OK возвращает Response без ошибки с переданным статусом.
func OK(status string) Response {
	return Response{Status: status}
}

// Error возвращает Response с ошибкой и переданным сообщением.
func Error(msg string) Response {
	return Response{
		Status: StatusError,
		Error:  msg,
	}
}

// ValidationError формирует Response со статусом Error на основе ошибок валидации.
func ValidationError(errs validator.ValidationErrors) Response {
	var errsMsgs []string

	for _, err := range errs {
		field := strings.ToLower(err.Field())
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("parameter %s is required", field))
		case "oneof":
			errsMsgs = append(errsMsgs, fmt.Sprintf("parameter %s must be one of: %s", field, err.Param()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("parameter %s is not valid", field))
		}
	}
	return Response{
		Status: StatusError,
		Error:  strings.Join(errsMsgs, ", "),
	}
}
