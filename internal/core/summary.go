package core

import (
	"math"
	"slices"
	"time"
)

// Summary holds the four dashboard aggregates.
type Summary struct {
	TotalOperations int
	TotalAmount     float64
	PendingTasks    int
	TotalDocuments  int
}

// MonthCount is the number of operations dated in one calendar month.
type MonthCount struct {
	Year  int
	Month time.Month
	Count int
}

// Label returns the short month name, e.g. "Jan".
func (m MonthCount) Label() string {
	return m.Month.String()[:3]
}

// Summarize reduces the three collections to the dashboard aggregates.
// The result does not depend on input order.
func Summarize(ops []Operation, tasks []Task, docs []Document) Summary {
	return Summary{
		TotalOperations: len(ops),
		TotalAmount:     TotalAmount(ops),
		PendingTasks:    PendingTasks(tasks),
		TotalDocuments:  len(docs),
	}
}

// TotalAmount sums operation amounts; unparsable amounts contribute 0.
func TotalAmount(ops []Operation) float64 {
	vals := make([]float64, 0, len(ops))
	for _, op := range ops {
		v := op.Amount.Float()
		if math.IsNaN(v) || v == 0 {
			continue
		}
		vals = append(vals, v)
	}
	// fixed summation order keeps the float result permutation-invariant
	slices.Sort(vals)
	var sum float64
	for _, v := range vals {
		sum += v
	}
	if math.IsNaN(sum) {
		// +Inf and -Inf together
		return 0
	}
	return sum
}

// PendingTasks counts tasks whose status is exactly "pending".
func PendingTasks(tasks []Task) int {
	n := 0
	for _, t := range tasks {
		if t.Status == StatusPending {
			n++
		}
	}
	return n
}

// MonthlyOperations counts operations per calendar month for the trailing
// months ending with the month of now, oldest first. Operations whose date
// does not parse are not counted.
func MonthlyOperations(ops []Operation, now time.Time, months int) []MonthCount {
	if months <= 0 {
		return nil
	}
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)
	out := make([]MonthCount, months)
	for i := range out {
		m := first.AddDate(0, i, 0)
		out[i] = MonthCount{Year: m.Year(), Month: m.Month()}
	}
	for _, op := range ops {
		t, ok := ParseRecordDate(op.Date)
		if !ok {
			continue
		}
		idx := (t.Year()-first.Year())*12 + int(t.Month()) - int(first.Month())
		if idx >= 0 && idx < months {
			out[idx].Count++
		}
	}
	return out
}
