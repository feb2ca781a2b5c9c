package pharmacy

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetMedicationByName(t *testing.T) {
	c := NewCatalog()

	res := c.GetMedicationByName(MedicationByNameArgs{Name: "  nurofen "})
	info, ok := res.(MedicationInfo)
	require.True(t, ok)
	require.True(t, info.Success)
	require.Equal(t, "נורופן", info.Name)
	require.Equal(t, 200, info.StrengthMg)
	require.Equal(t, []int{200, 400}, info.AvailableStrengths)

	info = c.GetMedicationByName(MedicationByNameArgs{Name: "נורופן", StrengthMg: 400}).(MedicationInfo)
	require.Equal(t, 400, info.StrengthMg)

	info = c.GetMedicationByName(MedicationByNameArgs{Name: "Nurofen", StrengthMg: 300}).(MedicationInfo)
	require.Equal(t, 200, info.StrengthMg, "unknown strength falls back to the first")

	fail := c.GetMedicationByName(MedicationByNameArgs{Name: "Aspirin"}).(Failure)
	require.False(t, fail.Success)
	require.Equal(t, "medication_not_found", fail.Error)
	require.Contains(t, fail.Message, "Aspirin")
}

func TestSearchMedicationsByIngredient(t *testing.T) {
	c := NewCatalog()

	res := c.SearchMedicationsByIngredient(IngredientArgs{Ingredient: "פרצטמול"}).(IngredientResult)
	require.True(t, res.Success)
	require.Len(t, res.Medications, 1)
	require.Equal(t, "Acamol", res.Medications[0].NameEn)

	fail := c.SearchMedicationsByIngredient(IngredientArgs{Ingredient: "קפאין"}).(Failure)
	require.Equal(t, "ingredient_not_found", fail.Error)
}

func TestCheckPrescriptionRequirement(t *testing.T) {
	c := NewCatalog()

	res := c.CheckPrescriptionRequirement(NameArgs{Name: "Ventolin"}).(PrescriptionResult)
	require.True(t, res.RequiresPrescription)
	require.Equal(t, "תרופה במרשם בלבד", res.LegalCategory)

	res = c.CheckPrescriptionRequirement(NameArgs{Name: "אקמול"}).(PrescriptionResult)
	require.False(t, res.RequiresPrescription)
	require.Equal(t, "תרופה ללא מרשם (OTC)", res.LegalCategory)
}

func TestGetAlternativeMedications(t *testing.T) {
	c := NewCatalog()

	// no other dipyrone product, same category and in stock: Acamol
	res := c.GetAlternativeMedications(NameArgs{Name: "Optalgin"}).(AlternativesResult)
	require.Equal(t, "אופטלגין", res.OriginalMedication)
	require.Len(t, res.Alternatives, 1)
	require.Equal(t, "Acamol", res.Alternatives[0].NameEn)

	res = c.GetAlternativeMedications(NameArgs{Name: "Ventolin"}).(AlternativesResult)
	require.True(t, res.Success)
	require.Empty(t, res.Alternatives)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	require.Contains(t, string(data), `"alternatives":[]`)
}

func TestExecute(t *testing.T) {
	c := NewCatalog()
	ctx := context.Background()

	res, err := c.Execute(ctx, FuncGetMedicationByName, map[string]any{"name": "Nurofen", "strength_mg": float64(400)})
	require.NoError(t, err)
	require.Equal(t, 400, res.(MedicationInfo).StrengthMg)

	res, err = c.Execute(ctx, "order_pizza", map[string]any{})
	require.NoError(t, err)
	require.Equal(t, "unknown_function", res.(Failure).Error)

	_, err = c.Execute(ctx, FuncCheckPrescriptionRequirement, map[string]any{})
	require.ErrorIs(t, err, ErrMissingArgument)

	_, err = c.Execute(ctx, FuncSearchMedicationsByIngredient, map[string]any{"ingredient": 42})
	require.Error(t, err)
}

func TestTools(t *testing.T) {
	tools := Tools()
	require.Len(t, tools, 4)

	names := make([]string, 0, len(tools))
	for _, tl := range tools {
		require.Equal(t, "function", tl.Type)
		require.NotEmpty(t, tl.Description)
		names = append(names, tl.Name)
	}
	require.Equal(t, []string{
		FuncGetMedicationByName,
		FuncSearchMedicationsByIngredient,
		FuncCheckPrescriptionRequirement,
		FuncGetAlternativeMedications,
	}, names)

	data, err := json.Marshal(tools[0].Parameters)
	require.NoError(t, err)
	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	require.Equal(t, []any{"name"}, schema["required"])
}
