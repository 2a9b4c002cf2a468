package batch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the report.
const SheetName = "Image Metadata"

var xlsxColumns = []struct {
	header string
	width  float64
}{
	{"File Name", 30},
	{"Date and Time Taken", 25},
	{"Service Type", 14},
	{"Reading", 16},
	{"Display Box", 22},
	{"Fallback", 10},
	{"Error", 40},
}

// WriteXLSX writes rows to a spreadsheet at path, creating its directory.
func WriteXLSX(path string, rows []Row) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	for i, col := range xlsxColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(SheetName, cell, col.header); err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetName, cell, cell, bold); err != nil {
			return err
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, name, name, col.width); err != nil {
			return err
		}
	}

	for i, r := range rows {
		values := []any{r.File, r.TakenAt, r.ServiceType, r.Reading, r.Display, r.Fallback, r.Error}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return f.SaveAs(path)
}
