package zohocrm

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the CRM timestamp format: offset aware, second precision.
const TimeLayout = "2006-01-02T15:04:05-07:00"

var (
	parenEscaper     = strings.NewReplacer("(", `\(`, ")", `\)`)
	ampersandEscaper = strings.NewReplacer("&", `\&`)
)

// EscapeCriteria backslash-escapes parentheses in a search value. A value
// that already contains an escaped parenthesis is returned unchanged, so
// escaping twice is harmless.
func EscapeCriteria(value string) string {
	if strings.Contains(value, `\(`) || strings.Contains(value, `\)`) {
		return value
	}
	return parenEscaper.Replace(value)
}

// EscapeAmpersand escapes "&" the same way EscapeCriteria escapes
// parentheses.
func EscapeAmpersand(value string) string {
	if strings.Contains(value, `\&`) {
		return value
	}
	return ampersandEscaper.Replace(value)
}

// Criterion builds "(field:op:value)" with the value escaped.
func Criterion(field, op, value string) string {
	return fmt.Sprintf("(%s:%s:%s)", field, op, EscapeCriteria(value))
}

// In builds an "in" criterion over several values.
func In(field string, values ...string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = EscapeCriteria(v)
	}
	return fmt.Sprintf("(%s:in:%s)", field, strings.Join(escaped, ","))
}

// And joins criteria with the "and" operator.
func And(criteria ...string) string {
	return join("and", criteria)
}

// Or joins criteria with the "or" operator.
func Or(criteria ...string) string {
	return join("or", criteria)
}

func join(op string, criteria []string) string {
	switch len(criteria) {
	case 0:
		return ""
	case 1:
		return criteria[0]
	}
	return "(" + strings.Join(criteria, op) + ")"
}

// RelatedModule composes a sub-resource path such as
// "price_books/{id}/products". The result is queried like any module.
func RelatedModule(parent, id, child string) string {
	return parent + "/" + id + "/" + child
}

// FormatTime renders t in TimeLayout, dropping sub-second precision.
func FormatTime(t time.Time) string {
	return t.Truncate(time.Second).Format(TimeLayout)
}

// ParseTime parses the CRM's timestamp formats. Values without a zone are
// read as UTC.
func ParseTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}

	if before, _, found := strings.Cut(value, "."); found {
		value = before
	}
	for _, layout := range []string{"2006-01-02T15:04:05", time.DateOnly} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse time string: %s", value)
}
