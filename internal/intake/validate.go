package intake

import "strings"

// ValidateStep reports whether the record may leave the given step.
// Steps 3 and 4 never block.
func ValidateStep(step int, r *Record) error {
	var missing []string
	switch step {
	case 1:
		if r.File == nil {
			missing = append(missing, "MRI image")
		}
		if blank(r.PatientName) {
			missing = append(missing, "patient name")
		}
	case 2:
		if blank(r.Age) {
			missing = append(missing, "age")
		}
		if blank(r.HeightCm) {
			missing = append(missing, "height")
		}
		if blank(r.WeightKg) {
			missing = append(missing, "weight")
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Step: step, Missing: missing}
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
