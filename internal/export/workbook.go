package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/solosaving/backend/internal/domain"
)

const (
	snapshotSheet = "Snapshots"
	holdingSheet  = "Holdings"
)

// WriteWorkbook writes an XLSX workbook with a Snapshots sheet (oldest first) and a
// Holdings sheet to w.
func WriteWorkbook(w io.Writer, snapshots []domain.DailySnapshot, holdings []domain.Holding) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", snapshotSheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	if _, err := f.NewSheet(holdingSheet); err != nil {
		return fmt.Errorf("adding sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E5E7EB"}},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	yen, err := f.NewStyle(&excelize.Style{NumFmt: 3}) // #,##0
	if err != nil {
		return fmt.Errorf("creating number style: %w", err)
	}

	if err := writeRows(f, snapshotSheet, snapshotRows(snapshots)); err != nil {
		return err
	}
	if err := writeRows(f, holdingSheet, holdingRows(holdings)); err != nil {
		return err
	}

	for _, sheet := range []struct {
		name    string
		lastCol string
		yenCols [2]string
		rows    int
	}{
		{snapshotSheet, "H", [2]string{"B", "F"}, len(snapshots)},
		{holdingSheet, "I", [2]string{"G", "H"}, len(holdings)},
	} {
		if err := f.SetCellStyle(sheet.name, "A1", sheet.lastCol+"1", header); err != nil {
			return fmt.Errorf("styling %s header: %w", sheet.name, err)
		}
		if sheet.rows > 0 {
			from := fmt.Sprintf("%s2", sheet.yenCols[0])
			to := fmt.Sprintf("%s%d", sheet.yenCols[1], sheet.rows+1)
			if err := f.SetCellStyle(sheet.name, from, to, yen); err != nil {
				return fmt.Errorf("styling %s values: %w", sheet.name, err)
			}
		}
		if err := f.SetColWidth(sheet.name, "A", sheet.lastCol, 14); err != nil {
			return fmt.Errorf("sizing %s columns: %w", sheet.name, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
