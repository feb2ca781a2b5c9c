// Package pharmacy holds the medication catalog and the lookup functions the
// assistant can call.
package pharmacy

import "strings"

type Medication struct {
	NameHe               string
	NameEn               string
	ActiveIngredient     string
	StrengthMg           []int
	InstructionsDosage   string
	InStock              bool
	RequiresPrescription bool
	Category             string
	Warnings             string
}

func (m Medication) matches(term string) bool {
	return strings.Contains(strings.ToLower(m.NameHe), term) ||
		strings.Contains(strings.ToLower(m.NameEn), term)
}

var defaultMedications = []Medication{
	{
		NameHe:               "נורופן",
		NameEn:               "Nurofen",
		ActiveIngredient:     "איבופרופן",
		StrengthMg:           []int{200, 400},
		InstructionsDosage:   "למבוגרים: טבליה אחת (200-400 מ\"ג) כל 6-8 שעות. ניתן לקחת עם או בלי אוכל. לא לעבור 1200 מ\"ג ביום.",
		InStock:              true,
		RequiresPrescription: false,
		Category:             "משככי כאבים ונוגדי דלקת",
		Warnings:             "לא לשימוש עם אלכוהול. להימנע בהיריון ובהנקה ללא ייעוץ רפואי.",
	},
	{
		NameHe:               "אקמול",
		NameEn:               "Acamol",
		ActiveIngredient:     "פרצטמול",
		StrengthMg:           []int{500, 1000},
		InstructionsDosage:   "למבוגרים: 1-2 טבליות (500-1000 מ\"ג) כל 4-6 שעות. לא לעבור 4000 מ\"ג ביום.",
		InStock:              true,
		RequiresPrescription: false,
		Category:             "משככי כאבים ומורידי חום",
		Warnings:             "זהירות במחלות כבד. אין לשלב עם תרופות המכילות פרצטמול.",
	},
	{
		NameHe:               "אופטלגין",
		NameEn:               "Optalgin",
		ActiveIngredient:     "דיפירון (מטמיזול)",
		StrengthMg:           []int{500},
		InstructionsDosage:   "למבוגרים: 1-2 טבליות (500-1000 מ\"ג) עד 3 פעמים ביום. לקחת עם אוכל.",
		InStock:              false,
		RequiresPrescription: false,
		Category:             "משככי כאבים ומורידי חום",
		Warnings:             "עלול לגרום לאגרנולוציטוזיס נדיר. להפסיק אם מופיע חום או דלקת גרון.",
	},
	{
		NameHe:               "ונטולין",
		NameEn:               "Ventolin",
		ActiveIngredient:     "סלבוטמול",
		StrengthMg:           []int{100},
		InstructionsDosage:   "שאיפה: 1-2 שאיפות לפי הצורך. רווח של 4 שעות בין מנות. לא יותר מ-8 שאיפות ביום.",
		InStock:              true,
		RequiresPrescription: true,
		Category:             "מרחיבי סימפונות",
		Warnings:             "דורש מרשם רופא. עלול לגרום לרעד קל. להימנע משימוש מופרז.",
	},
}

// Catalog is a read-only, in-memory medication database.
type Catalog struct {
	medications []Medication
}

// NewCatalog returns a catalog over meds, or over the built-in records when
// meds is empty.
func NewCatalog(meds ...Medication) *Catalog {
	if len(meds) == 0 {
		meds = defaultMedications
	}
	return &Catalog{medications: meds}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (c *Catalog) findByName(name string) (Medication, bool) {
	term := normalize(name)
	for _, med := range c.medications {
		if med.matches(term) {
			return med, true
		}
	}
	return Medication{}, false
}
