package risk

import "strings"

// Analyte codes accepted by the lab vocabulary.
const (
	AnalyteHemoglobin   = "HB"
	AnalyteHematocrit   = "HCT"
	AnalyteFetalHb      = "HBF"
	AnalyteReticulocyte = "RETIC"
	AnalyteLDH          = "LDH"
	AnalyteBilirubin    = "BILIRUBIN"
	AnalyteCreatinine   = "CREATININE"
	AnalyteBUN          = "BUN"
	AnalyteWBC          = "WBC"
	AnalytePlatelets    = "PLT"
)

// Direction says which side of the baseline is adverse.
type Direction float64

const (
	HigherIsWorse Direction = 1
	LowerIsWorse  Direction = -1
)

// AnalyteSpec is one row of the lab scoring table.
type AnalyteSpec struct {
	Code      string
	Name      string
	Weight    float64
	Direction Direction
}

// FeatureName is the key the analyte contributes under, e.g. "hb_z".
func (a AnalyteSpec) FeatureName() string {
	return strings.ToLower(a.Code) + "_z"
}

// LabFeatureTable lists every scored analyte in feature insertion order.
var LabFeatureTable = []AnalyteSpec{
	{Code: AnalyteHemoglobin, Name: "Hemoglobin", Weight: 0.8, Direction: LowerIsWorse},
	{Code: AnalyteHematocrit, Name: "Hematocrit", Weight: 0.5, Direction: LowerIsWorse},
	{Code: AnalyteFetalHb, Name: "Fetal hemoglobin fraction", Weight: 0.6, Direction: LowerIsWorse},
	{Code: AnalyteReticulocyte, Name: "Reticulocyte %", Weight: 0.5, Direction: HigherIsWorse},
	{Code: AnalyteLDH, Name: "Lactate dehydrogenase", Weight: 0.8, Direction: HigherIsWorse},
	{Code: AnalyteBilirubin, Name: "Bilirubin", Weight: 0.6, Direction: HigherIsWorse},
	{Code: AnalyteCreatinine, Name: "Creatinine", Weight: 0.7, Direction: HigherIsWorse},
	{Code: AnalyteBUN, Name: "Blood urea nitrogen", Weight: 0.4, Direction: HigherIsWorse},
	{Code: AnalyteWBC, Name: "White-cell count", Weight: 0.4, Direction: HigherIsWorse},
	{Code: AnalytePlatelets, Name: "Platelet count", Weight: 0.3, Direction: HigherIsWorse},
}

// DriftAnalytes are checked, in this order, by the lab drift insight.
var DriftAnalytes = []string{AnalyteHemoglobin, AnalyteLDH, AnalyteBilirubin, AnalyteReticulocyte}

var analyteIndex = func() map[string]AnalyteSpec {
	m := make(map[string]AnalyteSpec, len(LabFeatureTable))
	for _, a := range LabFeatureTable {
		m[a.Code] = a
	}
	return m
}()

// LookupAnalyte returns the table row for code.
func LookupAnalyte(code string) (AnalyteSpec, bool) {
	a, ok := analyteIndex[code]
	return a, ok
}

// IsKnownAnalyte reports whether code belongs to the lab vocabulary.
func IsKnownAnalyte(code string) bool {
	_, ok := analyteIndex[code]
	return ok
}
