package domain

import "math/rand/v2"

// FallbackSymptom is used when neither the payload nor the catalog names a
// symptom.
const FallbackSymptom = "두근거림"

type SymptomPayload struct {
	Symptoms   []string
	OtherText  string
	Activities []string
}

// ResolvePayload returns a copy of p with a non-empty symptom list. When p
// carries no symptoms, exactly one is drawn uniformly from catalog.
func ResolvePayload(p *SymptomPayload, catalog []string, rng *rand.Rand) SymptomPayload {
	var out SymptomPayload
	if p != nil {
		out = SymptomPayload{
			Symptoms:   append([]string(nil), p.Symptoms...),
			OtherText:  p.OtherText,
			Activities: append([]string(nil), p.Activities...),
		}
	}
	if len(out.Symptoms) > 0 {
		return out
	}

	pick := FallbackSymptom
	if len(catalog) > 0 {
		pick = catalog[rng.IntN(len(catalog))]
	}
	out.Symptoms = []string{pick}
	return out
}
