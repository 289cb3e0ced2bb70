// Package registry maintains the process-wide catalog of every field path
// observed across trips: semantic type inference, occurrence statistics and
// stability classification.
package registry

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tripforge/tripforge-backend/types"
)

var (
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneRe = regexp.MustCompile(`^(\d{3}-\d{3}-\d{4}|\(\d{3}\)\s*\d{3}-\d{4}|\d{3}\.\d{3}\.\d{4}|\+\d{1,3}[\s-]?\d{3,4}[\s-]?\d{3,4}([\s-]?\d{3,4})?)$`)
	dateRe  = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4}|[A-Za-z]{3,9}\s+\d{1,2},?\s+\d{4})$`)
	// ISO 8601 or "date time" forms.
	dateTimeRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T\s]\d{2}:\d{2}(:\d{2})?`)
	// Alphanumeric locator with at least one letter and one digit, upper case.
	confirmationRe = regexp.MustCompile(`^[A-Z0-9]{5,10}$`)
	currencyCodeRe = regexp.MustCompile(`(?i)^(\d[\d,]*(\.\d+)?)\s*(USD|EUR|GBP|CAD|AUD|JPY)$`)
	currencySymRe  = regexp.MustCompile(`^[$€£]\s*(\d[\d,]*(\.\d+)?)$`)
)

// Classify infers the semantic data type of a single sample value. It is a
// pure function: same value, same answer. Values that cannot be confidently
// classified fall back to free text rather than failing.
func Classify(value any) types.FieldDataType {
	switch v := value.(type) {
	case nil:
		return types.FieldTypeText
	case bool:
		return types.FieldTypeBoolean
	case int, int32, int64, float32, float64:
		return types.FieldTypeNumber
	case []any:
		return types.FieldTypeArray
	case map[string]any:
		return types.FieldTypeObject
	case types.Extension:
		return types.FieldTypeObject
	case time.Time:
		return types.FieldTypeDateTime
	case string:
		return classifyString(v)
	default:
		return types.FieldTypeText
	}
}

func classifyString(s string) types.FieldDataType {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.FieldTypeText
	}

	switch {
	case emailRe.MatchString(s):
		return types.FieldTypeEmail
	case phoneRe.MatchString(s):
		return types.FieldTypePhone
	case dateTimeRe.MatchString(s):
		return types.FieldTypeDateTime
	case dateRe.MatchString(s):
		return types.FieldTypeDate
	case isAirportCode(s):
		return types.FieldTypeAirportCode
	case isCurrencyAmount(s):
		return types.FieldTypeCurrency
	case isNumeric(s):
		return types.FieldTypeNumber
	case isBooleanWord(s):
		return types.FieldTypeBoolean
	case isConfirmationCode(s):
		return types.FieldTypeConfirmationCode
	default:
		return types.FieldTypeText
	}
}

func isAirportCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// isCurrencyAmount recognizes symbol- or code-qualified amounts. Bare numbers
// stay numbers; an amount needs a currency marker to classify as currency.
func isCurrencyAmount(s string) bool {
	var amount string
	if m := currencySymRe.FindStringSubmatch(s); m != nil {
		amount = m[1]
	} else if m := currencyCodeRe.FindStringSubmatch(s); m != nil {
		amount = m[1]
	} else {
		return false
	}
	_, err := decimal.NewFromString(strings.ReplaceAll(amount, ",", ""))
	return err == nil
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func isBooleanWord(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "yes", "no":
		return true
	default:
		return false
	}
}

func isConfirmationCode(s string) bool {
	if !confirmationRe.MatchString(s) {
		return false
	}
	hasLetter, hasDigit := false, false
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

// generalization is the parent link of the type lattice. Every chain ends at
// free text, the most general type.
var generalization = map[types.FieldDataType]types.FieldDataType{
	types.FieldTypeCurrency:         types.FieldTypeNumber,
	types.FieldTypeDateTime:         types.FieldTypeDate,
	types.FieldTypeNumber:           types.FieldTypeText,
	types.FieldTypeDate:             types.FieldTypeText,
	types.FieldTypeBoolean:          types.FieldTypeText,
	types.FieldTypeEmail:            types.FieldTypeText,
	types.FieldTypePhone:            types.FieldTypeText,
	types.FieldTypeAirportCode:      types.FieldTypeText,
	types.FieldTypeConfirmationCode: types.FieldTypeText,
	types.FieldTypeArray:            types.FieldTypeText,
	types.FieldTypeObject:           types.FieldTypeText,
}

// Generalize resolves a type conflict to the most general common
// classification of a and b. Because the lattice is a tree rooted at free
// text, the result is deterministic and commutative regardless of the order
// samples arrive in.
func Generalize(a, b types.FieldDataType) types.FieldDataType {
	if a == b {
		return a
	}
	ancestors := map[types.FieldDataType]bool{a: true}
	for cur := a; cur != types.FieldTypeText; {
		cur = generalization[cur]
		ancestors[cur] = true
	}
	for cur := b; ; cur = generalization[cur] {
		if ancestors[cur] {
			return cur
		}
		if cur == types.FieldTypeText {
			return types.FieldTypeText
		}
	}
}
