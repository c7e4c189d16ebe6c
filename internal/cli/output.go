package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"neuro-ai/internal/advice"
	"neuro-ai/internal/engagement"
)

// DiagnosisOutput is the machine-readable result of diagnose.
type DiagnosisOutput struct {
	SessionID   string        `json:"session_id" yaml:"session_id"`
	Patient     string        `json:"patient" yaml:"patient"`
	Age         string        `json:"age" yaml:"age"`
	BMI         string        `json:"bmi" yaml:"bmi"`
	BMICategory string        `json:"bmi_category,omitempty" yaml:"bmi_category,omitempty"`
	Symptoms    []string      `json:"symptoms" yaml:"symptoms"`
	Prediction  string        `json:"prediction" yaml:"prediction"`
	ClassIndex  int           `json:"class_index" yaml:"class_index"`
	Confidence  string        `json:"confidence_percent" yaml:"confidence_percent"`
	Tone        string        `json:"tone" yaml:"tone"`
	Advice      []advice.Line `json:"advice" yaml:"advice"`
}

func writeStructured(w io.Writer, format string, v interface{}) (bool, error) {
	switch format {
	case "json":
		output, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return true, err
		}
		fmt.Fprintln(w, string(output))
		return true, nil
	case "yaml":
		output, err := yaml.Marshal(v)
		if err != nil {
			return true, err
		}
		fmt.Fprint(w, string(output))
		return true, nil
	}
	return false, nil
}

func toneColor(tone string) *color.Color {
	switch tone {
	case "success":
		return color.New(color.FgGreen, color.Bold)
	case "warning":
		return color.New(color.FgYellow, color.Bold)
	case "caution":
		return color.New(color.FgHiYellow, color.Bold)
	case "danger":
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgCyan, color.Bold)
	}
}

func displayDiagnosis(w io.Writer, out DiagnosisOutput) {
	cyan := color.New(color.FgCyan, color.Bold)
	bold := color.New(color.Bold)

	fmt.Fprintln(w)
	cyan.Fprintln(w, "MRI ANALYSIS RESULT")
	fmt.Fprintf(w, "   Patient:    %s (age %s)\n", out.Patient, out.Age)
	if out.BMICategory != "" {
		fmt.Fprintf(w, "   BMI:        %s (%s)\n", out.BMI, out.BMICategory)
	} else {
		fmt.Fprintf(w, "   BMI:        %s\n", out.BMI)
	}
	if len(out.Symptoms) > 0 {
		fmt.Fprintf(w, "   Symptoms:   %s\n", strings.Join(out.Symptoms, ", "))
	}
	fmt.Fprintln(w)

	fmt.Fprint(w, "   Prediction: ")
	toneColor(out.Tone).Fprintln(w, out.Prediction)
	fmt.Fprintf(w, "   Confidence: %s\n\n", out.Confidence)

	if len(out.Advice) > 0 {
		cyan.Fprintln(w, "AI RECOMMENDATIONS")
		for _, l := range out.Advice {
			if l.Heading {
				bold.Fprintf(w, "   %s\n", l.Text)
			} else {
				fmt.Fprintf(w, "   %s\n", l.Text)
			}
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%s\n", color.HiBlackString("Run with -o json or -o yaml for machine-readable output"))
}

func displayAnalytics(w io.Writer, a engagement.Analytics) {
	cyan := color.New(color.FgCyan, color.Bold)
	if a.Total == 0 {
		fmt.Fprintln(w, "No feedback data available yet")
		return
	}
	cyan.Fprintln(w, "Live Feedback Analytics")
	fmt.Fprintf(w, "Based on %d user responses\n", a.Total)
	for _, s := range a.Slices {
		c := color.New(color.FgWhite)
		switch s.Type {
		case engagement.TrueResult:
			c = color.New(color.FgGreen)
		case engagement.FalseResult:
			c = color.New(color.FgRed)
		case engagement.PartiallyCorrect:
			c = color.New(color.FgYellow)
		}
		c.Fprintf(w, "   %-18s %3d%%  (%d)\n", s.Label, s.Percent, s.Count)
	}
}

func displayTestimonials(w io.Writer, list []engagement.Testimonial) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No testimonials yet")
		return
	}
	yellow := color.New(color.FgYellow)
	for _, t := range list {
		fmt.Fprintf(w, "[%s] %s, %s ", t.Initial(), t.Name, t.Designation)
		yellow.Fprintln(w, strings.Repeat("*", t.StarRating))
		fmt.Fprintf(w, "    %q\n", t.Comment)
	}
}
