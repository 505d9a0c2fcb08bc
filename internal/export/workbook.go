// Package export renders relationship reports as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/starford/dossier/internal/models"
)

const (
	SheetTopFiles   = "Top Files"
	SheetTopClients = "Top Clients"
	SheetStats      = "Stats"
)

var degreeHeader = []string{"Rank", "Contact", "File Number", "Email", "Company", "Degree"}

// WriteReport writes r as an XLSX workbook with one sheet per report section.
func WriteReport(w io.Writer, r *models.RelationshipReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetTopFiles); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetTopClients); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetStats); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeDegrees(f, SheetTopFiles, r.TopFiles, headerStyle); err != nil {
		return err
	}
	if err := writeDegrees(f, SheetTopClients, r.TopClients, headerStyle); err != nil {
		return err
	}

	stats := [][]any{
		{"Metric", "Count"},
		{"Total", r.Stats.Total},
		{"Linked", r.Stats.Linked},
		{"Unlinked", r.Stats.Unlinked},
	}
	for i, row := range stats {
		if err := setRow(f, SheetStats, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(SheetStats, "A1", "B1", headerStyle); err != nil {
		return fmt.Errorf("set header style: %w", err)
	}

	f.SetActiveSheet(0)
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeDegrees(f *excelize.File, sheet string, entries []models.DegreeEntry, headerStyle int) error {
	header := make([]any, len(degreeHeader))
	for i, h := range degreeHeader {
		header[i] = h
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(degreeHeader), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("set header style: %w", err)
	}

	for i, e := range entries {
		company := ""
		if e.Contact.Company != nil {
			company = *e.Contact.Company
		}
		row := []any{i + 1, e.Contact.DisplayName(), e.Contact.FileNumber, e.Contact.Email, company, e.Degree}
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}

	for col, width := range map[string]float64{"B": 32, "C": 14, "D": 30, "E": 24} {
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d of %s: %w", row, sheet, err)
	}
	return nil
}
