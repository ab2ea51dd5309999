package homework

import "fmt"

type ExtractionKind int

const (
	NoChange ExtractionKind = iota
	Rendered
)

func (k ExtractionKind) String() string {
	switch k {
	case NoChange:
		return "no_change"
	case Rendered:
		return "rendered"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Extraction is the result of Extract. Status, Name and Message are set only
// when Kind is Rendered.
type Extraction struct {
	Kind    ExtractionKind
	Status  string
	Name    string
	Message string
}

// Extract renders the notification for the newest homework in resp.
// Only homeworks[0] is considered.
func Extract(resp Response) (Extraction, error) {
	if len(resp.Homeworks) == 0 {
		return Extraction{Kind: NoChange}, nil
	}

	item, ok := resp.Homeworks[0].(map[string]any)
	if !ok {
		return Extraction{}, &NotAMappingError{Where: "homeworks[0]", Got: typeName(resp.Homeworks[0])}
	}

	status, err := stringField(item, FieldStatus)
	if err != nil {
		return Extraction{}, err
	}
	name, err := stringField(item, FieldName)
	if err != nil {
		return Extraction{}, err
	}

	verdict, ok := Verdict(status)
	if !ok {
		return Extraction{}, &UnrecognizedStatusError{Status: status, Name: name}
	}

	return Extraction{
		Kind:    Rendered,
		Status:  status,
		Name:    name,
		Message: RenderMessage(name, verdict),
	}, nil
}

func RenderMessage(name, verdict string) string {
	return fmt.Sprintf("Изменился статус проверки работы \"%s\". %s", name, verdict)
}

func stringField(item map[string]any, field string) (string, error) {
	v, ok := item[field]
	if !ok {
		return "", &MissingFieldError{Field: field}
	}
	s, ok := v.(string)
	if !ok {
		return "", &MissingOrWrongTypeError{Field: field, Want: "string", Got: typeName(v)}
	}
	return s, nil
}
