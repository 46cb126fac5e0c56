package http

import (
	"math"
	"strings"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/services"
)

type sectionLink struct {
	Name  string
	Label string
	Path  string
}

// sections are the shell navigation entries in display order.
var sections = []sectionLink{
	{"dashboard", "Dashboard", "/ui/dashboard"},
	{"calculator", "Calculator", "/ui/calculator"},
	{"operations", "Operations", "/ui/operations"},
	{"tasks", "Tasks", "/ui/tasks"},
	{"documents", "Documents", "/ui/documents"},
	{"admin", "Admin", "/ui/admin"},
}

type indexView struct {
	SignedIn bool
	Email    string
	Error    string
	Sections []sectionLink
}

type (
	operationRow struct {
		ID     int64
		Date   string
		Type   string
		Client string
		Amount string
		Status string
	}

	taskRow struct {
		ID          int64
		Title       string
		Description string
		Due         string
		Status      string
	}

	documentRow struct {
		ID       int64
		Name     string
		Type     string
		FileURL  string
		Uploaded string
	}

	listView struct {
		Kind       core.Kind
		Label      string
		Operations []operationRow
		Tasks      []taskRow
		Documents  []documentRow
	}
)

func operationRows(ops []core.Operation) []operationRow {
	rows := make([]operationRow, 0, len(ops))
	for _, op := range ops {
		rows = append(rows, operationRow{
			ID:     op.ID,
			Date:   core.FormatDate(op.Date),
			Type:   op.Type,
			Client: op.Client,
			Amount: core.FormatAmount(op.Amount.Float()),
			Status: op.Status,
		})
	}
	return rows
}

func taskRows(tasks []core.Task) []taskRow {
	rows := make([]taskRow, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, taskRow{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			Due:         core.FormatDate(t.DueDate),
			Status:      t.Status,
		})
	}
	return rows
}

func documentRows(docs []core.Document) []documentRow {
	rows := make([]documentRow, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, documentRow{
			ID:       d.ID,
			Name:     d.Name,
			Type:     d.Type,
			FileURL:  safeURL(d.FileURL),
			Uploaded: core.FormatDate(d.UploadedDate),
		})
	}
	return rows
}

// safeURL keeps only web links; anything else is not rendered as a link.
func safeURL(u string) string {
	l := strings.ToLower(strings.TrimSpace(u))
	if strings.HasPrefix(l, "https://") || strings.HasPrefix(l, "http://") {
		return strings.TrimSpace(u)
	}
	return ""
}

type formView struct {
	Kind  core.Kind
	Title string
	Today string
}

func formTitle(k core.Kind) string {
	switch k {
	case core.KindOperation:
		return "Add Operation"
	case core.KindTask:
		return "Add Task"
	case core.KindDocument:
		return "Upload Document"
	}
	return "Add"
}

type (
	barView struct {
		Label  string
		Count  int
		Height int // percent of the tallest bar
	}

	dashboardView struct {
		TotalOperations int
		TotalAmount     string
		PendingTasks    int
		TotalDocuments  int
		Bars            []barView
		Partial         bool
	}
)

func newDashboardView(d services.Dashboard) dashboardView {
	v := dashboardView{
		TotalOperations: d.Summary.TotalOperations,
		TotalAmount:     core.FormatAmount(d.Summary.TotalAmount),
		PendingTasks:    d.Summary.PendingTasks,
		TotalDocuments:  d.Summary.TotalDocuments,
		Partial:         d.Err != nil,
	}
	peak := 0
	for _, m := range d.Monthly {
		peak = max(peak, m.Count)
	}
	for _, m := range d.Monthly {
		h := 0
		if peak > 0 {
			h = int(math.Round(float64(m.Count) * 100 / float64(peak)))
		}
		v.Bars = append(v.Bars, barView{Label: m.Label(), Count: m.Count, Height: h})
	}
	return v
}

type calculatorView struct {
	Amount string
	Rate   string
	Fee    string
	Result *core.FundingDisplay
}
