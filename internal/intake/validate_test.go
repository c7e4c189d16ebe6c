package intake

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStep1(t *testing.T) {
	r := &Record{}
	err := ValidateStep(1, r)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"MRI image", "patient name"}, ve.Missing)

	r.PatientName = "   "
	r.File = &UploadedFile{Name: "a.png", ContentType: "image/png"}
	require.True(t, errors.As(ValidateStep(1, r), &ve))
	assert.Equal(t, []string{"patient name"}, ve.Missing)

	r.PatientName = "Jane Doe"
	assert.NoError(t, ValidateStep(1, r))
}

func TestValidateStep2(t *testing.T) {
	r := &Record{Age: "70", HeightCm: "170"}
	var ve *ValidationError
	require.True(t, errors.As(ValidateStep(2, r), &ve))
	assert.Equal(t, []string{"weight"}, ve.Missing)
	assert.Contains(t, ve.Error(), "weight")

	r.WeightKg = " "
	require.Error(t, ValidateStep(2, r))

	r.WeightKg = "60"
	assert.NoError(t, ValidateStep(2, r))
}

func TestValidateStep3And4NeverBlock(t *testing.T) {
	assert.NoError(t, ValidateStep(3, &Record{}))
	assert.NoError(t, ValidateStep(4, &Record{}))
}
