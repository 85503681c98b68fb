// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/pickup-storefront/internal/model"
)

var (
	// ErrInvalidQuantity возвращается для пустого, нечислового, неположительного или слишком большого количества.
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	// ErrInvalidDate возвращается, если дата не соответствует формату YYYY-MM-DD.
	ErrInvalidDate = errors.New("date must be formatted as YYYY-MM-DD")
)

// Present сообщает, что строка непуста после удаления пробелов.
func Present(s string) bool {
	return strings.TrimSpace(s) != ""
}

// ParseQuantity разбирает количество из пользовательского ввода без подстановки значения по умолчанию.
func ParseQuantity(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrInvalidQuantity
	}

	for _, ch := range raw {
		if ch < '0' || ch > '9' {
			return 0, ErrInvalidQuantity
		}
	}

	qty, err := strconv.Atoi(raw)
	if err != nil || qty <= 0 || qty > model.MaxLineQuantity {
		return 0, ErrInvalidQuantity
	}

	return qty, nil
}

// ParsePickupDate разбирает дату самовывоза в указанной зоне.
func ParsePickupDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	raw = strings.TrimSpace(raw)
	if len(raw) != len(model.DateLayout) {
		return time.Time{}, ErrInvalidDate
	}

	t, err := time.ParseInLocation(model.DateLayout, raw, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}

	return t, nil
}
