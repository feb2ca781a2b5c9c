package pharmacy

import (
	"fmt"
	"slices"
	"strings"
)

const (
	FuncGetMedicationByName           = "get_medication_by_name"
	FuncSearchMedicationsByIngredient = "search_medications_by_ingredient"
	FuncCheckPrescriptionRequirement  = "check_prescription_requirement"
	FuncGetAlternativeMedications     = "get_alternative_medications"
)

type MedicationByNameArgs struct {
	Name       string `json:"name" jsonschema:"description=Medication name in Hebrew or English"`
	StrengthMg int    `json:"strength_mg,omitempty" jsonschema:"description=Requested strength in milligrams"`
}

type IngredientArgs struct {
	Ingredient string `json:"ingredient" jsonschema:"description=Active ingredient to search for"`
}

type NameArgs struct {
	Name string `json:"name" jsonschema:"description=Medication name in Hebrew or English"`
}

// Failure is returned for lookups that found nothing.
type Failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func failure(code, message string) Failure {
	return Failure{Success: false, Error: code, Message: message}
}

type MedicationInfo struct {
	Success              bool   `json:"success"`
	Name                 string `json:"name"`
	NameEn               string `json:"name_en"`
	ActiveIngredient     string `json:"active_ingredient"`
	StrengthMg           int    `json:"strength_mg"`
	AvailableStrengths   []int  `json:"available_strengths"`
	InstructionsDosage   string `json:"instructions_dosage"`
	InStock              bool   `json:"in_stock"`
	RequiresPrescription bool   `json:"requires_prescription"`
	Category             string `json:"category"`
	Warnings             string `json:"warnings"`
}

type IngredientMatch struct {
	Name                 string `json:"name"`
	NameEn               string `json:"name_en"`
	StrengthMg           []int  `json:"strength_mg"`
	InStock              bool   `json:"in_stock"`
	RequiresPrescription bool   `json:"requires_prescription"`
	Category             string `json:"category"`
}

type IngredientResult struct {
	Success     bool              `json:"success"`
	Ingredient  string            `json:"ingredient"`
	Medications []IngredientMatch `json:"medications"`
}

type PrescriptionResult struct {
	Success              bool   `json:"success"`
	Name                 string `json:"name"`
	RequiresPrescription bool   `json:"requires_prescription"`
	LegalCategory        string `json:"legal_category"`
	Message              string `json:"message"`
}

type Alternative struct {
	Name                 string `json:"name"`
	NameEn               string `json:"name_en"`
	ActiveIngredient     string `json:"active_ingredient"`
	StrengthMg           []int  `json:"strength_mg"`
	RequiresPrescription bool   `json:"requires_prescription"`
}

type AlternativesResult struct {
	Success            bool          `json:"success"`
	OriginalMedication string        `json:"original_medication"`
	Alternatives       []Alternative `json:"alternatives"`
}

func (c *Catalog) GetMedicationByName(args MedicationByNameArgs) any {
	med, ok := c.findByName(args.Name)
	if !ok {
		return failure("medication_not_found", fmt.Sprintf("לא נמצאה תרופה בשם \"%s\" במאגר שלנו.", args.Name))
	}

	strength := med.StrengthMg[0]
	if args.StrengthMg != 0 && slices.Contains(med.StrengthMg, args.StrengthMg) {
		strength = args.StrengthMg
	}

	return MedicationInfo{
		Success:              true,
		Name:                 med.NameHe,
		NameEn:               med.NameEn,
		ActiveIngredient:     med.ActiveIngredient,
		StrengthMg:           strength,
		AvailableStrengths:   med.StrengthMg,
		InstructionsDosage:   med.InstructionsDosage,
		InStock:              med.InStock,
		RequiresPrescription: med.RequiresPrescription,
		Category:             med.Category,
		Warnings:             med.Warnings,
	}
}

func (c *Catalog) SearchMedicationsByIngredient(args IngredientArgs) any {
	term := normalize(args.Ingredient)

	var matches []IngredientMatch
	for _, med := range c.medications {
		if !strings.Contains(strings.ToLower(med.ActiveIngredient), term) {
			continue
		}
		matches = append(matches, IngredientMatch{
			Name:                 med.NameHe,
			NameEn:               med.NameEn,
			StrengthMg:           med.StrengthMg,
			InStock:              med.InStock,
			RequiresPrescription: med.RequiresPrescription,
			Category:             med.Category,
		})
	}

	if len(matches) == 0 {
		return failure("ingredient_not_found", fmt.Sprintf("לא נמצאו תרופות המכילות את המרכיב \"%s\".", args.Ingredient))
	}
	return IngredientResult{Success: true, Ingredient: args.Ingredient, Medications: matches}
}

func (c *Catalog) CheckPrescriptionRequirement(args NameArgs) any {
	med, ok := c.findByName(args.Name)
	if !ok {
		return failure("medication_not_found", fmt.Sprintf("לא נמצאה תרופה בשם \"%s\" במאגר.", args.Name))
	}

	res := PrescriptionResult{
		Success:              true,
		Name:                 med.NameHe,
		RequiresPrescription: med.RequiresPrescription,
		LegalCategory:        "תרופה ללא מרשם (OTC)",
		Message:              "תרופה זו אינה דורשת מרשם ואפשר לרכוש אותה ללא מרשם רופא.",
	}
	if med.RequiresPrescription {
		res.LegalCategory = "תרופה במרשם בלבד"
		res.Message = "תרופה זו דורשת מרשם רופא ואינה זמינה ללא מרשם."
	}
	return res
}

// GetAlternativeMedications suggests in-stock medications with the same
// active ingredient, falling back to the same category.
func (c *Catalog) GetAlternativeMedications(args NameArgs) any {
	original, ok := c.findByName(args.Name)
	if !ok {
		return failure("medication_not_found", fmt.Sprintf("לא נמצאה תרופה בשם \"%s\".", args.Name))
	}

	alternatives := c.alternatives(original, func(med Medication) bool {
		return med.ActiveIngredient == original.ActiveIngredient
	})
	if len(alternatives) == 0 {
		alternatives = c.alternatives(original, func(med Medication) bool {
			return med.Category == original.Category
		})
	}

	return AlternativesResult{
		Success:            true,
		OriginalMedication: original.NameHe,
		Alternatives:       alternatives,
	}
}

func (c *Catalog) alternatives(original Medication, related func(Medication) bool) []Alternative {
	out := []Alternative{}
	for _, med := range c.medications {
		if med.NameHe == original.NameHe || !med.InStock || !related(med) {
			continue
		}
		out = append(out, Alternative{
			Name:                 med.NameHe,
			NameEn:               med.NameEn,
			ActiveIngredient:     med.ActiveIngredient,
			StrengthMg:           med.StrengthMg,
			RequiresPrescription: med.RequiresPrescription,
		})
	}
	return out
}
