package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"neuro-ai/internal/advice"
	"neuro-ai/internal/intake"
	"neuro-ai/internal/predict"
	"neuro-ai/internal/report"
)

type diagnoseOptions struct {
	name       string
	image      string
	age        string
	height     string
	weight     string
	symptoms   []string
	notes      string
	reportPath string
	predictURL string
	timeout    time.Duration
}

func newDiagnoseCmd(a *app) *cobra.Command {
	o := &diagnoseOptions{}
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Run the MRI intake flow and print the AI analysis",
		Long: `Walks the four intake steps (scan, patient details, symptoms, review),
submits the scan to the prediction service and prints the result.

Examples:
  # Analyse a scan
  neuroctl diagnose --image scan.png --name "Jane Doe" --age 71 --height 165 --weight 60 \
    --symptom "Memory Loss" --symptom "Mood Changes" --notes "sleep issues"

  # Save the doctor report
  neuroctl diagnose --image scan.png --name "Jane Doe" --age 71 --height 165 --weight 60 --report report.pdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(cmd, a, o)
		},
	}

	cmd.Flags().StringVar(&o.image, "image", "", "Path to the MRI image")
	cmd.Flags().StringVar(&o.name, "name", "", "Patient name")
	cmd.Flags().StringVar(&o.age, "age", "", "Patient age")
	cmd.Flags().StringVar(&o.height, "height", "", "Height in cm")
	cmd.Flags().StringVar(&o.weight, "weight", "", "Weight in kg")
	cmd.Flags().StringArrayVarP(&o.symptoms, "symptom", "s", nil, "Observed symptom, repeatable (see --help for the list)")
	cmd.Flags().StringVar(&o.notes, "notes", "", "Other symptoms, free text")
	cmd.Flags().StringVar(&o.reportPath, "report", "", "Write the PDF report to this path")
	cmd.Flags().StringVar(&o.predictURL, "predict-url", "", "Prediction endpoint (overrides PREDICT_URL)")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 0, "Prediction timeout, 0 waits until the service answers (overrides PREDICT_TIMEOUT)")

	return cmd
}

func runDiagnose(cmd *cobra.Command, a *app, o *diagnoseOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	url := a.cfg.Predict.URL
	if o.predictURL != "" {
		url = o.predictURL
	}
	timeout := a.cfg.Predict.Timeout
	if cmd.Flags().Changed("timeout") {
		timeout = o.timeout
	}

	flow := intake.NewFlow(predict.NewClient(url, timeout, a.logger), intake.NewMemoryPreviewStore(), a.cfg.Intake.StatusInterval)
	defer flow.Discard()

	if err := fillFlow(flow, o); err != nil {
		return err
	}

	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
	s.Start()
	_, err := flow.Submit(ctx, func(msg string) {
		s.Lock()
		s.Suffix = " " + msg
		s.Unlock()
	})
	s.Stop()
	if err != nil {
		red := color.New(color.FgRed)
		red.Fprintf(cmd.ErrOrStderr(), "✗ %s\n", err)
		return fmt.Errorf("analysis failed: %w", err)
	}

	snap := flow.Snapshot()
	if o.reportPath != "" {
		pdf, err := report.NewService(nil, 0, a.logger).Render(ctx, snap)
		if err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}
		if err := os.WriteFile(o.reportPath, pdf, 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	out := DiagnosisOutput{
		SessionID:   snap.ID,
		Patient:     snap.Record.PatientName,
		Age:         snap.Record.Age,
		BMI:         snap.Record.BMI,
		BMICategory: snap.Record.BMICategory,
		Symptoms:    intakeSymptoms(snap.Record),
		Prediction:  snap.Result.Prediction,
		ClassIndex:  snap.Result.ClassIndex,
		Confidence:  snap.Result.ConfidencePercent,
		Tone:        advice.Tone(snap.Result.Prediction),
		Advice:      advice.Format(snap.Result.Advice),
	}
	if out.Advice == nil {
		out.Advice = []advice.Line{}
	}
	if handled, err := writeStructured(cmd.OutOrStdout(), a.outputFormat, out); handled {
		return err
	}
	displayDiagnosis(cmd.OutOrStdout(), out)
	return nil
}

// fillFlow drives the flow through steps 1 to 3 into review.
func fillFlow(flow *intake.Flow, o *diagnoseOptions) error {
	if o.image != "" {
		file, err := readImage(o.image)
		if err != nil {
			return err
		}
		if err := flow.AcceptPick(file); err != nil {
			if errors.Is(err, intake.ErrNotImage) {
				return fmt.Errorf("%s: %w", o.image, err)
			}
			return err
		}
	}

	steps := []func() error{
		func() error { return flow.SetPatientName(o.name) },
		flow.Next,
		func() error { return flow.SetAge(o.age) },
		func() error { return flow.SetHeight(o.height) },
		func() error { return flow.SetWeight(o.weight) },
		flow.Next,
		func() error {
			for _, s := range o.symptoms {
				if err := flow.ToggleSymptom(s, true); err != nil {
					return fmt.Errorf("%q: %w", s, err)
				}
			}
			return nil
		},
		func() error { return flow.SetManualSymptoms(o.notes) },
		flow.Next,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func readImage(path string) (*intake.UploadedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &intake.UploadedFile{Name: filepath.Base(path), ContentType: contentType, Data: data}, nil
}

func intakeSymptoms(r intake.RecordView) []string {
	rec := intake.Record{Symptoms: r.Symptoms, ManualSymptoms: r.ManualSymptoms}
	return rec.AllSymptoms()
}
