package engagement

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrInvalidFeedbackType = errors.New("invalid feedback type")
	ErrInvalidRating       = errors.New("star rating must be between 1 and 5")
)

// Visitor is one presence record.
type Visitor struct {
	SessionID string    `json:"session_id"`
	IsOnline  bool      `json:"is_online"`
	LastSeen  time.Time `json:"last_seen"`
}

type FeedbackType string

const (
	TrueResult       FeedbackType = "true_result"
	FalseResult      FeedbackType = "false_result"
	PartiallyCorrect FeedbackType = "partially_correct"
)

// FeedbackTypes is the display order of the analytics slices.
var FeedbackTypes = []FeedbackType{TrueResult, FalseResult, PartiallyCorrect}

func (t FeedbackType) Valid() bool {
	switch t {
	case TrueResult, FalseResult, PartiallyCorrect:
		return true
	}
	return false
}

// Label is the analytics caption of the type.
func (t FeedbackType) Label() string {
	switch t {
	case TrueResult:
		return "True Results"
	case FalseResult:
		return "False Results"
	case PartiallyCorrect:
		return "Partially Correct"
	}
	return string(t)
}

// Color is the chart colour of the type.
func (t FeedbackType) Color() string {
	switch t {
	case TrueResult:
		return "#22c55e"
	case FalseResult:
		return "#ef4444"
	case PartiallyCorrect:
		return "#f59e0b"
	}
	return "#6b7280"
}

// DetailedFeedback is a testimonial as submitted by a user.
type DetailedFeedback struct {
	Name        string `json:"name"`
	Designation string `json:"designation"`
	StarRating  int    `json:"star_rating"`
	Comment     string `json:"comment"`
}

// IncompleteError lists the required testimonial fields that were left blank.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("please fill in all fields: %s", strings.Join(e.Missing, ", "))
}

// Validate requires every field; the rating must be 1 to 5.
func (d DetailedFeedback) Validate() error {
	var missing []string
	if strings.TrimSpace(d.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(d.Designation) == "" {
		missing = append(missing, "designation")
	}
	if d.StarRating == 0 {
		missing = append(missing, "star rating")
	}
	if strings.TrimSpace(d.Comment) == "" {
		missing = append(missing, "comment")
	}
	if len(missing) > 0 {
		return &IncompleteError{Missing: missing}
	}
	if d.StarRating < 1 || d.StarRating > 5 {
		return ErrInvalidRating
	}
	return nil
}

// Testimonial is a stored detailed feedback row.
type Testimonial struct {
	ID          uuid.UUID `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Designation string    `json:"designation" yaml:"designation"`
	StarRating  int       `json:"star_rating" yaml:"star_rating"`
	Comment     string    `json:"comment" yaml:"comment"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// Initial is the avatar letter of the author.
func (t Testimonial) Initial() string {
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(t.Name))
	if r == utf8.RuneError {
		return "?"
	}
	return string(unicode.ToUpper(r))
}

type AnalyticsSlice struct {
	Type    FeedbackType `json:"type" yaml:"type"`
	Label   string       `json:"label" yaml:"label"`
	Count   int          `json:"count" yaml:"count"`
	Percent int          `json:"percent" yaml:"percent"`
	Color   string       `json:"color" yaml:"color"`
}

type Analytics struct {
	Total  int              `json:"total" yaml:"total"`
	Slices []AnalyticsSlice `json:"slices" yaml:"slices"`
}

// BuildAnalytics turns raw counts into rounded percentages. With no feedback
// at all there are no slices.
func BuildAnalytics(counts map[FeedbackType]int) Analytics {
	a := Analytics{Slices: []AnalyticsSlice{}}
	for _, t := range FeedbackTypes {
		a.Total += counts[t]
	}
	if a.Total == 0 {
		return a
	}
	for _, t := range FeedbackTypes {
		n := counts[t]
		a.Slices = append(a.Slices, AnalyticsSlice{
			Type:    t,
			Label:   t.Label(),
			Count:   n,
			Percent: int(math.Round(float64(n) / float64(a.Total) * 100)),
			Color:   t.Color(),
		})
	}
	return a
}
