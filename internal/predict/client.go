package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"neuro-ai/internal/advice"
	"neuro-ai/internal/intake"
)

const (
	fallbackMessage = "Unable to process MRI scan. Please try again."
	failedMessage   = "Analysis failed"
)

// Error is a failed prediction call with a message fit for the user.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

type Client struct {
	url        string
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient builds the inference client. A zero timeout waits until the endpoint settles.
func NewClient(url string, timeout time.Duration, logger *zap.Logger) *Client {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{url: url, httpClient: client, logger: logger}
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// Predict posts the image, BMI and symptoms as one multipart request. No retries.
func (c *Client) Predict(ctx context.Context, sub intake.Submission) (*intake.DiagnosisResult, error) {
	if sub.File == nil {
		return nil, &Error{Message: fallbackMessage, Err: intake.ErrNoFile}
	}

	start := time.Now()
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetMultipartField("file", sub.File.Name, sub.File.ContentType, bytes.NewReader(sub.File.Data)).
		SetFormDataFromValues(formValues(sub)).
		Post(c.url)
	if err != nil {
		c.logger.Error("prediction request failed", zap.Error(err))
		return nil, &Error{Message: fallbackMessage, Err: err}
	}

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		msg := detailMessage(resp.Body())
		if msg == "" {
			msg = failedMessage
		}
		c.logger.Warn("prediction service rejected request",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("detail", msg),
		)
		return nil, &Error{
			Status:  resp.StatusCode(),
			Message: msg,
			Err:     fmt.Errorf("prediction API error: %s", resp.Status()),
		}
	}

	// The service does not always label its JSON.
	var result intake.DiagnosisResult
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, &Error{Status: resp.StatusCode(), Message: fallbackMessage, Err: fmt.Errorf("decode prediction: %w", err)}
	}
	if err := normalize(&result); err != nil {
		return nil, &Error{Status: resp.StatusCode(), Message: fallbackMessage, Err: err}
	}

	c.logger.Info("prediction received",
		zap.String("prediction", result.Prediction),
		zap.Int("class_index", result.ClassIndex),
		zap.String("confidence", result.ConfidencePercent),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &result, nil
}

// formValues holds bmi and one symptoms value per symptom, in order.
func formValues(sub intake.Submission) url.Values {
	form := url.Values{}
	form.Set("bmi", sub.BMI)
	for _, symptom := range sub.Symptoms {
		form.Add("symptoms", symptom)
	}
	return form
}

// detailMessage pulls a string "detail" out of an error body, if there is one.
func detailMessage(raw []byte) string {
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err != nil || len(er.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(er.Detail, &detail); err != nil {
		return ""
	}
	return strings.TrimSpace(detail)
}

// normalize makes the confidence text a usable CSS percentage.
func normalize(r *intake.DiagnosisResult) error {
	r.ConfidencePercent = strings.TrimSpace(r.ConfidencePercent)
	if !strings.HasSuffix(r.ConfidencePercent, "%") {
		r.ConfidencePercent += "%"
	}
	if !advice.IsPercent(r.ConfidencePercent) {
		return fmt.Errorf("malformed confidence_percent %q", r.ConfidencePercent)
	}
	return nil
}
