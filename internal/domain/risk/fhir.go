package risk

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sicklecare/sicklecare/internal/platform/fhir"
)

const (
	riskProbabilitySystem = "http://terminology.hl7.org/CodeSystem/risk-probability"
	riskMethodSystem      = "urn:sicklecare:risk-method"
	riskMethodCode        = "baseline-z-logistic"
)

// ToFHIR renders the daily risk as a FHIR RiskAssessment resource. The
// resource id is derived from subject and date so repeated calls match.
func (r *DailyRisk) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType":       "RiskAssessment",
		"id":                 fmt.Sprintf("daily-%s-%s", r.Subject, r.Date),
		"status":             "final",
		"subject":            fhir.Reference{Reference: fhir.FormatReference("Patient", r.Subject)},
		"occurrenceDateTime": r.Date,
		"method": fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: riskMethodSystem, Code: riskMethodCode, Display: "Personal-baseline z-score logistic"}},
		},
		"prediction": []interface{}{
			map[string]interface{}{
				"probabilityDecimal": float64(r.Score) / 100,
				"qualitativeRisk": fhir.CodeableConcept{
					Coding: []fhir.Coding{{System: riskProbabilitySystem, Code: string(r.Tier), Display: string(r.Tier)}},
				},
			},
		},
	}
	if len(r.Explanation) > 0 {
		parts := make([]string, len(r.Explanation))
		for i, f := range r.Explanation {
			parts[i] = f.Name + "=" + strconv.FormatFloat(f.Value, 'f', -1, 64)
		}
		result["note"] = []fhir.Annotation{{Text: "Top contributors: " + strings.Join(parts, ", ")}}
	}
	return result
}
