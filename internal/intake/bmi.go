package intake

import (
	"math"
	"strconv"
	"strings"
)

// CalculateBMI returns weight / (height/100)^2 with two decimals, or "" unless both
// inputs parse to positive finite numbers.
func CalculateBMI(heightCm, weightKg string) string {
	h, ok := positive(heightCm)
	if !ok {
		return ""
	}
	w, ok := positive(weightKg)
	if !ok {
		return ""
	}
	m := h / 100
	return strconv.FormatFloat(w/(m*m), 'f', 2, 64)
}

func positive(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

// BMICategory maps a BMI value to its display label.
func BMICategory(bmi float64) string {
	switch {
	case bmi < 18.5:
		return "Underweight"
	case bmi < 25:
		return "Normal weight"
	case bmi < 30:
		return "Overweight"
	default:
		return "Obese"
	}
}

// CategoryOf is BMICategory over the formatted BMI text; empty text has no category.
func CategoryOf(bmi string) string {
	v, err := strconv.ParseFloat(bmi, 64)
	if err != nil {
		return ""
	}
	return BMICategory(v)
}
