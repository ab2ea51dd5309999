package homework

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSchema is matched by every shape violation (errors.Is), but not by
// UnrecognizedStatusError.
var ErrSchema = errors.New("response schema violation")

type NotAMappingError struct {
	Where string // "response" or "homeworks[0]"
	Got   string // dynamic type name
}

func (e *NotAMappingError) Error() string {
	return fmt.Sprintf("%s is not a mapping (got %s)", e.Where, e.Got)
}

func (e *NotAMappingError) Is(target error) bool { return target == ErrSchema }

type MissingOrWrongTypeError struct {
	Field string
	Want  string
	Got   string // "missing" when absent
}

func (e *MissingOrWrongTypeError) Error() string {
	if e.Got == "missing" {
		return fmt.Sprintf("field %q is missing (want %s)", e.Field, e.Want)
	}
	return fmt.Sprintf("field %q has type %s, want %s", e.Field, e.Got, e.Want)
}

func (e *MissingOrWrongTypeError) Is(target error) bool { return target == ErrSchema }

type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("field %q is missing", e.Field)
}

func (e *MissingFieldError) Is(target error) bool { return target == ErrSchema }

// UnrecognizedStatusError means the payload was well-formed but carried a
// status code outside the catalog.
type UnrecognizedStatusError struct {
	Status string
	Name   string
}

func (e *UnrecognizedStatusError) Error() string {
	return fmt.Sprintf("unrecognized homework status %q for %q", e.Status, e.Name)
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "bool"
	case json.Number, float64, int64, int:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
