package intake

import (
	"strings"
)

// State is a node of the intake state machine.
type State string

const (
	StateStep1      State = "step1"
	StateStep2      State = "step2"
	StateStep3      State = "step3"
	StateReview     State = "step4_review"
	StateSubmitting State = "step4_submitting"
	StateResult     State = "step4_result"
)

// Step returns the 1-based step number shown to the user.
func (s State) Step() int {
	switch s {
	case StateStep1:
		return 1
	case StateStep2:
		return 2
	case StateStep3:
		return 3
	default:
		return 4
	}
}

// UploadedFile is the image selected in step 1.
type UploadedFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Record is the mutable intake record of one session.
// BMI has no setter: it is recomputed by SetHeight and SetWeight.
type Record struct {
	File           *UploadedFile
	PatientName    string
	Age            string
	HeightCm       string
	WeightKg       string
	BMI            string
	Symptoms       []string
	ManualSymptoms string
}

func (r *Record) SetHeight(v string) {
	r.HeightCm = v
	r.BMI = CalculateBMI(r.HeightCm, r.WeightKg)
}

func (r *Record) SetWeight(v string) {
	r.WeightKg = v
	r.BMI = CalculateBMI(r.HeightCm, r.WeightKg)
}

// ToggleSymptom adds or removes a predefined symptom label, keeping selection order.
func (r *Record) ToggleSymptom(label string, checked bool) error {
	if !IsKnownSymptom(label) {
		return ErrUnknownSymptom
	}
	idx := -1
	for i, s := range r.Symptoms {
		if s == label {
			idx = i
			break
		}
	}
	switch {
	case checked && idx < 0:
		r.Symptoms = append(r.Symptoms, label)
	case !checked && idx >= 0:
		r.Symptoms = append(r.Symptoms[:idx:idx], r.Symptoms[idx+1:]...)
	}
	return nil
}

// AllSymptoms is the submitted symptom list: the selected labels followed by the
// trimmed free text when it is not blank.
func (r *Record) AllSymptoms() []string {
	all := make([]string, 0, len(r.Symptoms)+1)
	all = append(all, r.Symptoms...)
	if manual := strings.TrimSpace(r.ManualSymptoms); manual != "" {
		all = append(all, manual)
	}
	return all
}

// Freeze copies the parts of the record that leave the process on submit.
func (r *Record) Freeze() Submission {
	sub := Submission{
		BMI:      r.BMI,
		Symptoms: r.AllSymptoms(),
	}
	if r.File != nil {
		f := *r.File
		sub.File = &f
	}
	return sub
}

// Submission is the frozen payload handed to the Predictor.
type Submission struct {
	File     *UploadedFile
	BMI      string
	Symptoms []string
}

// DiagnosisResult is the structured answer of the prediction service.
type DiagnosisResult struct {
	Prediction        string `json:"prediction"`
	ClassIndex        int    `json:"class_index"`
	ConfidencePercent string `json:"confidence_percent"`
	Advice            string `json:"ai_advice"`
}

// RecordView is a copy of the record safe to hand out of the flow lock.
type RecordView struct {
	FileName       string   `json:"file_name,omitempty"`
	FileType       string   `json:"file_type,omitempty"`
	PatientName    string   `json:"patient_name"`
	Age            string   `json:"age"`
	HeightCm       string   `json:"height_cm"`
	WeightKg       string   `json:"weight_kg"`
	BMI            string   `json:"bmi"`
	BMICategory    string   `json:"bmi_category,omitempty"`
	Symptoms       []string `json:"symptoms"`
	ManualSymptoms string   `json:"manual_symptoms"`
}

func (r *Record) view() RecordView {
	v := RecordView{
		PatientName:    r.PatientName,
		Age:            r.Age,
		HeightCm:       r.HeightCm,
		WeightKg:       r.WeightKg,
		BMI:            r.BMI,
		BMICategory:    CategoryOf(r.BMI),
		Symptoms:       append([]string{}, r.Symptoms...),
		ManualSymptoms: r.ManualSymptoms,
	}
	if r.File != nil {
		v.FileName = r.File.Name
		v.FileType = r.File.ContentType
	}
	return v
}
