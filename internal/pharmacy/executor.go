package pharmacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/codewandler/pharmacyrt-go/tool"
)

var ErrMissingArgument = errors.New("missing argument")

type function struct {
	tool tool.Tool
	call func(c *Catalog, args map[string]any) (any, error)
}

func define[T any](name, description string, required func(T) string, f func(*Catalog, T) any) function {
	return function{
		tool: tool.Reflect[T](name, description),
		call: func(c *Catalog, args map[string]any) (any, error) {
			data, err := json.Marshal(args)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			var a T
			if err := json.Unmarshal(data, &a); err != nil {
				return nil, fmt.Errorf("%s: invalid arguments: %w", name, err)
			}
			if missing := required(a); missing != "" {
				return nil, fmt.Errorf("%s: %w %q", name, ErrMissingArgument, missing)
			}
			return f(c, a), nil
		},
	}
}

func requireName(a NameArgs) string {
	if strings.TrimSpace(a.Name) == "" {
		return "name"
	}
	return ""
}

var functions = []function{
	define(FuncGetMedicationByName,
		"Look up a medication by its Hebrew or English name. Returns dosage instructions, available strengths, stock status and warnings.",
		func(a MedicationByNameArgs) string { return requireName(NameArgs{Name: a.Name}) },
		(*Catalog).GetMedicationByName),
	define(FuncSearchMedicationsByIngredient,
		"Find all medications that contain the given active ingredient.",
		func(a IngredientArgs) string {
			if strings.TrimSpace(a.Ingredient) == "" {
				return "ingredient"
			}
			return ""
		},
		(*Catalog).SearchMedicationsByIngredient),
	define(FuncCheckPrescriptionRequirement,
		"Check whether a medication requires a doctor's prescription.",
		requireName,
		(*Catalog).CheckPrescriptionRequirement),
	define(FuncGetAlternativeMedications,
		"Suggest in-stock alternatives with the same active ingredient or from the same category.",
		requireName,
		(*Catalog).GetAlternativeMedications),
}

// Tools returns the function definitions to register with the session.
func Tools() []tool.Tool {
	out := make([]tool.Tool, 0, len(functions))
	for _, f := range functions {
		out = append(out, f.tool)
	}
	return out
}

// Execute runs a catalog function by name. Unknown names yield a failure
// result rather than an error.
func (c *Catalog) Execute(_ context.Context, name string, args map[string]any) (any, error) {
	for _, f := range functions {
		if f.tool.Name == name {
			return f.call(c, args)
		}
	}
	return failure("unknown_function", ""), nil
}

var _ tool.Executor = (*Catalog)(nil)
