package training

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/mikey/phish-detector/internal/core"
)

// ClassMetrics holds the per-class scores of an evaluation
type ClassMetrics struct {
	Label     core.Label
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report summarises how a classifier performed on held-out examples
type Report struct {
	Accuracy float64
	// Confusion[i][j] counts examples of class Labels[i] predicted as Labels[j]
	Confusion [][]int
	Labels    []core.Label
	Classes   []ClassMetrics
	Macro     ClassMetrics
	Weighted  ClassMetrics
	Total     int
}

// Evaluate compares predicted against actual labels over the classes in labels
func Evaluate(labels []core.Label, actual, predicted []core.Label) (*Report, error) {
	if len(actual) != len(predicted) {
		return nil, fmt.Errorf("got %d actual labels but %d predictions", len(actual), len(predicted))
	}
	if len(actual) == 0 {
		return nil, fmt.Errorf("%w: nothing to evaluate", core.ErrInsufficientTrainingData)
	}

	index := make(map[core.Label]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}

	confusion := make([][]int, len(labels))
	for i := range confusion {
		confusion[i] = make([]int, len(labels))
	}
	correct := 0
	for i := range actual {
		a, ok := index[actual[i]]
		if !ok {
			return nil, fmt.Errorf("unknown actual label %q", actual[i])
		}
		p, ok := index[predicted[i]]
		if !ok {
			return nil, fmt.Errorf("unknown predicted label %q", predicted[i])
		}
		confusion[a][p]++
		if a == p {
			correct++
		}
	}

	report := &Report{
		Accuracy:  float64(correct) / float64(len(actual)),
		Confusion: confusion,
		Labels:    append([]core.Label(nil), labels...),
		Total:     len(actual),
		Macro:     ClassMetrics{Label: "macro avg", Support: len(actual)},
		Weighted:  ClassMetrics{Label: "weighted avg", Support: len(actual)},
	}

	for i, l := range labels {
		tp := confusion[i][i]
		support, predictedAs := 0, 0
		for j := range labels {
			support += confusion[i][j]
			predictedAs += confusion[j][i]
		}

		m := ClassMetrics{
			Label:     l,
			Precision: ratio(tp, predictedAs),
			Recall:    ratio(tp, support),
			Support:   support,
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report.Classes = append(report.Classes, m)

		w := float64(support) / float64(len(actual))
		report.Macro.Precision += m.Precision / float64(len(labels))
		report.Macro.Recall += m.Recall / float64(len(labels))
		report.Macro.F1 += m.F1 / float64(len(labels))
		report.Weighted.Precision += m.Precision * w
		report.Weighted.Recall += m.Recall * w
		report.Weighted.F1 += m.F1 * w
	}
	return report, nil
}

// Print writes the report as a plain text table
func (r *Report) Print(w io.Writer) error {
	fmt.Fprintf(w, "Accuracy: %.2f%%\n", r.Accuracy*100)

	fmt.Fprintln(w, "Confusion Matrix (rows actual, columns predicted):")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "\t")
	for _, l := range r.Labels {
		fmt.Fprintf(tw, "%s\t", l)
	}
	fmt.Fprintln(tw)
	for i, l := range r.Labels {
		fmt.Fprintf(tw, "%s\t", l)
		for _, c := range r.Confusion[i] {
			fmt.Fprintf(tw, "%d\t", c)
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, "Classification Report:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tprecision\trecall\tf1-score\tsupport\t")
	rows := append(append([]ClassMetrics(nil), r.Classes...), r.Macro, r.Weighted)
	for _, m := range rows {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%d\t\n", m.Label.DisplayName(), m.Precision, m.Recall, m.F1, m.Support)
	}
	return tw.Flush()
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
