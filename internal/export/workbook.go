// Package export renders record collections as XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
)

const (
	ContentType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	OperationsSheet = "Operations"
)

var operationHeadings = []string{"Date", "Type", "Client", "Amount", "Status"}

// OperationsWorkbook builds a single sheet ledger of ops in the given order,
// followed by a total row. Amounts that parse as decimals become numeric
// cells; anything else is written as text.
func OperationsWorkbook(ops []core.Operation) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", OperationsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range operationHeadings {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(OperationsSheet, cell, h); err != nil {
			f.Close()
			return nil, err
		}
	}

	numFmt := "#,##0.00"
	amountStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("amount style: %w", err)
	}

	row := 2
	for _, op := range ops {
		values := []any{core.FormatDate(op.Date), op.Type, op.Client, amountValue(op.Amount), op.Status}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(OperationsSheet, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}
		row++
	}

	totalLabel, _ := excelize.CoordinatesToCellName(3, row)
	totalCell, _ := excelize.CoordinatesToCellName(4, row)
	if err := f.SetCellValue(OperationsSheet, totalLabel, "Total"); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetCellValue(OperationsSheet, totalCell, core.TotalAmount(ops)); err != nil {
		f.Close()
		return nil, err
	}

	if err := f.SetCellStyle(OperationsSheet, "D2", totalCell, amountStyle); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// WriteOperations streams the ledger workbook to w.
func WriteOperations(w io.Writer, ops []core.Operation) error {
	f, err := OperationsWorkbook(ops)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func amountValue(a core.Amount) any {
	d, err := decimal.NewFromString(strings.TrimSpace(string(a)))
	if err != nil {
		return string(a)
	}
	f, _ := d.Float64()
	return f
}
