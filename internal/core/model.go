package core

import (
	"fmt"
	"strings"
	"time"
)

// Label is a canonical class name of the phishing classifier
type Label string

const (
	LabelLegitimate Label = "legitimate"
	LabelPhishing   Label = "phishing"
)

// Labels returns the canonical classes in the order the classifier reports them
func Labels() []Label {
	return []Label{LabelLegitimate, LabelPhishing}
}

// DisplayName returns the name reported to callers for the label
func (l Label) DisplayName() string {
	switch l {
	case LabelPhishing:
		return "Phishing"
	case LabelLegitimate:
		return "Legitimate"
	default:
		return string(l)
	}
}

// ParseLabel converts a canonical or display label name into a Label
func ParseLabel(s string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(LabelPhishing):
		return LabelPhishing, nil
	case string(LabelLegitimate):
		return LabelLegitimate, nil
	default:
		return "", fmt.Errorf("unknown label %q", s)
	}
}

// Email represents an email message
type Email struct {
	From    string
	To      []string
	Subject string
	Body    string
	Headers map[string][]string
}

// Text returns the text the classifier sees for the email
func (e *Email) Text() string {
	if e.Subject == "" {
		return e.Body
	}
	return e.Subject + "\n" + e.Body
}

// LabeledExample is a training example
type LabeledExample struct {
	Text  string
	Label Label
}

// AnalysisResult represents the outcome of classifying one text
type AnalysisResult struct {
	Label         Label
	Prediction    string
	Confidence    float64
	Probabilities map[Label]float64
	ModelID       string
	ProcessingID  string
	AnalyzedAt    time.Time
	Recorded      bool
	RecordID      int64
}

// IsPhishing reports whether the text was classified as phishing
func (r *AnalysisResult) IsPhishing() bool {
	return r.Label == LabelPhishing
}

// AnalysisRecord is one immutable entry of the result store
type AnalysisRecord struct {
	ID         int64
	EmailText  string
	Prediction string
	Confidence float64
	Timestamp  string
}

// TimestampLayout is the layout of AnalysisRecord.Timestamp
const TimestampLayout = "2006-01-02 15:04:05"
