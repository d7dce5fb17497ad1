package errs

import (
	"errors"
	"sort"
	"strings"
)

// Доменные ошибки. Хендлеры маппят их в HTTP-коды через errors.Is.
var (
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrBuggyNotFound       = errors.New("buggy not found")
	ErrVisitNotFound       = errors.New("dealer visit not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAlreadyDone         = errors.New("ticket is already done")
	ErrInvalidTransition   = errors.New("transition not allowed in current state")
	ErrTestDriveNotPending = errors.New("no test drive requested for this ticket")
	ErrConcurrentUpdate    = errors.New("ticket was changed by someone else, reload and retry")
	ErrDuplicateBuggy      = errors.New("buggy with this number already exists")
	ErrDuplicateAccount    = errors.New("account with this slug already exists")
	ErrBuggyAtDealer       = errors.New("this buggy is already at dealer")
	ErrVisitReturned       = errors.New("dealer visit already returned")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUnauthenticated     = errors.New("authentication required")
	ErrForbidden           = errors.New("forbidden for this role")
)

// ValidationError: ошибка входных данных, до обращения к хранилищу.
// Fields: поле -> сообщение.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validation собирает ошибки полей; nil, если ошибок нет.
type Validation struct {
	fields map[string]string
}

func (v *Validation) Add(field, msg string) {
	if v.fields == nil {
		v.fields = make(map[string]string)
	}
	if _, ok := v.fields[field]; !ok {
		v.fields[field] = msg
	}
}

func (v *Validation) Check(ok bool, field, msg string) {
	if !ok {
		v.Add(field, msg)
	}
}

func (v *Validation) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

// IsValidation возвращает ValidationError, если err (или обёрнутая) — ошибка валидации.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
