package homework

import (
	"encoding/json"
	"math"
)

const (
	FieldHomeworks   = "homeworks"
	FieldCurrentDate = "current_date"
	FieldStatus      = "status"
	FieldName        = "homework_name"
)

// Response is a payload that passed Validate.
type Response struct {
	Homeworks   []any
	CurrentDate int64
}

// Validate checks raw against the expected homework_statuses shape.
//
// Checks run in order and the first violation is returned:
//  1. raw is a mapping
//  2. "homeworks" is present and a sequence
//  3. "current_date" is present
//  4. "current_date" is a non-negative integer
//
// An empty homeworks sequence is valid.
func Validate(raw any) (Response, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Response{}, &NotAMappingError{Where: "response", Got: typeName(raw)}
	}

	hwRaw, ok := m[FieldHomeworks]
	if !ok {
		return Response{}, &MissingOrWrongTypeError{Field: FieldHomeworks, Want: "array", Got: "missing"}
	}
	hws, ok := hwRaw.([]any)
	if !ok {
		return Response{}, &MissingOrWrongTypeError{Field: FieldHomeworks, Want: "array", Got: typeName(hwRaw)}
	}

	cdRaw, ok := m[FieldCurrentDate]
	if !ok {
		return Response{}, &MissingFieldError{Field: FieldCurrentDate}
	}
	cd, ok := asInt64(cdRaw)
	if !ok {
		return Response{}, &MissingOrWrongTypeError{Field: FieldCurrentDate, Want: "integer", Got: typeName(cdRaw)}
	}
	// The next fetch uses this as from_date, which the API client refuses
	// when negative.
	if cd < 0 {
		return Response{}, &MissingOrWrongTypeError{Field: FieldCurrentDate, Want: "non-negative integer", Got: "negative number"}
	}

	return Response{Homeworks: hws, CurrentDate: cd}, nil
}

// asInt64 accepts json.Number (decoder UseNumber) and integral float64
// (plain json.Unmarshal) forms.
func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	case float64:
		if x != math.Trunc(x) || x > math.MaxInt64 || x < math.MinInt64 {
			return 0, false
		}
		return int64(x), true
	case int64:
		return x, true
	case int:
		return int64(x), true
	default:
		return 0, false
	}
}
