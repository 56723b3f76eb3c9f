package sheet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"jobtrack-engine/internal/domain"
)

// SheetName is the single tab every workbook carries.
const SheetName = "Job Postings"

var headers = []string{
	"Priority", "Job Title", "Company", "Location",
	"Travel Required", "Salary/Rate", "Job URL", "Date Added",
}

var colWidths = []float64{10, 50, 30, 30, 15, 15, 50, 15}

const (
	travelDefault = "Not specified"
	salaryDefault = "Not Listed"
)

// BuildWorkbook renders the postings into a fresh workbook in the given
// order, one row each. Tier 1 rows come out green and bold, tier 2 pale
// yellow, everything else unstyled.
func BuildWorkbook(jobs []domain.JobPosting) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("workbook sheet name: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"0066CC"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("workbook header style: %w", err)
	}
	tier1Style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"90EE90"}},
	})
	if err != nil {
		return nil, fmt.Errorf("workbook tier style: %w", err)
	}
	tier2Style, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFFFE0"}},
	})
	if err != nil {
		return nil, fmt.Errorf("workbook tier style: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &headers); err != nil {
		return nil, fmt.Errorf("workbook headers: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "H1", headerStyle); err != nil {
		return nil, fmt.Errorf("workbook header style: %w", err)
	}

	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(SheetName, col, col, w); err != nil {
			return nil, fmt.Errorf("workbook col width: %w", err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
		Selection: []excelize.Selection{
			{SQRef: "A2", ActiveCell: "A2", Pane: "bottomLeft"},
		},
	}); err != nil {
		return nil, fmt.Errorf("workbook freeze panes: %w", err)
	}

	for i, j := range jobs {
		row := i + 2

		salary := j.Salary
		if salary == "" {
			salary = salaryDefault
		}

		cells := []interface{}{
			j.Tier, j.Title, j.Company, j.Location,
			travelDefault, salary, j.URL, j.DateAdded,
		}
		anchor := fmt.Sprintf("A%d", row)
		if err := f.SetSheetRow(SheetName, anchor, &cells); err != nil {
			return nil, fmt.Errorf("workbook row %d: %w", row, err)
		}

		var style int
		switch j.Tier {
		case domain.TierHigh:
			style = tier1Style
		case domain.TierMedium:
			style = tier2Style
		default:
			continue
		}
		if err := f.SetCellStyle(SheetName, anchor, fmt.Sprintf("H%d", row), style); err != nil {
			return nil, fmt.Errorf("workbook row style %d: %w", row, err)
		}
	}

	return f, nil
}

// WriteWorkbook builds and saves the workbook, replacing any previous file
// in one rename so a reader never sees a half-written spreadsheet.
func WriteWorkbook(path string, jobs []domain.JobPosting) error {
	f, err := BuildWorkbook(jobs)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("workbook dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := f.SaveAs(tmp); err != nil {
		return fmt.Errorf("workbook save: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("workbook replace: %w", err)
	}
	return nil
}
