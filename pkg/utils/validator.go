package utils

import (
	"errors"
	"regexp"
	"strings"
)

// Ошибки валидации
var (
	ErrInvalidInstrument = errors.New("invalid instrument: must be 1-32 characters of letters, digits, '-', '_', '&', '.', ':'")
	ErrInvalidAccountID  = errors.New("invalid account id: must be 1-64 characters of letters, digits, '-', '_'")
	ErrInvalidPrice      = errors.New("invalid price: must be a finite positive number")
)

var (
	instrumentRegex = regexp.MustCompile(`^[A-Za-z0-9\-_&.:]{1,32}$`)
	accountIDRegex  = regexp.MustCompile(`^[A-Za-z0-9\-_]{1,64}$`)
)

// ============ Инструменты и счета ============

// ValidateInstrument проверяет код инструмента (NIFTY, BANKNIFTY, M&M, NSE:SBIN)
func ValidateInstrument(instrument string) error {
	if !instrumentRegex.MatchString(instrument) {
		return ErrInvalidInstrument
	}
	return nil
}

// NormalizeInstrument приводит код инструмента к верхнему регистру без пробелов по краям
func NormalizeInstrument(instrument string) string {
	return strings.ToUpper(strings.TrimSpace(instrument))
}

// ValidateAccountID проверяет идентификатор фондированного счёта
func ValidateAccountID(id string) error {
	if !accountIDRegex.MatchString(id) {
		return ErrInvalidAccountID
	}
	return nil
}

// ValidatePrice проверяет цену тика
func ValidatePrice(price float64) error {
	if !IsFinite(price) || price <= 0 {
		return ErrInvalidPrice
	}
	return nil
}
