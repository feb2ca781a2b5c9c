package tool

import "github.com/invopop/jsonschema"

type Choice string

const (
	ChoiceAuto Choice = "auto"
	ChoiceNone Choice = "none"
)

type Tool struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

// Reflect builds a function tool whose parameter schema is derived from the
// argument struct T. Fields without omitempty are required.
func Reflect[T any](name, description string) Tool {
	r := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
		Anonymous:      true,
	}

	var args T
	schema := r.Reflect(&args)
	schema.Version = ""

	return Tool{
		Type:        "function",
		Name:        name,
		Description: description,
		Parameters:  schema,
	}
}
