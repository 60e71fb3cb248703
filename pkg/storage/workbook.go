package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"notecrawler/pkg/models"
)

// maxSheetName is the sheet title length kept in exported workbooks
const maxSheetName = 30

// Sheet is one worksheet of an exported workbook
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// SheetName makes an account name usable as a worksheet title
func SheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	name = strings.Trim(name, "'")

	runes := []rune(name)
	if len(runes) > maxSheetName {
		runes = runes[:maxSheetName]
	}
	if len(runes) == 0 {
		return "Sheet"
	}
	return string(runes)
}

// numericColumns are written as numbers rather than text
var numericColumns = map[string]bool{
	"like_count":    true,
	"collect_count": true,
	"share_count":   true,
	"comment_count": true,
}

// ExportWorkbook writes one worksheet per sheet to an xlsx file at path
func ExportWorkbook(path string, sheets []Sheet) error {
	if len(sheets) == 0 {
		return errors.New("no sheets to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	used := make(map[string]bool)
	for i, sheet := range sheets {
		name := uniqueSheetName(SheetName(sheet.Name), used)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return fmt.Errorf("rename sheet %q: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %q: %w", name, err)
		}

		if err := writeSheet(f, name, sheet); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create workbook directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func uniqueSheetName(name string, used map[string]bool) string {
	candidate := name
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf("~%d", n)
		runes := []rune(name)
		if len(runes)+len(suffix) > maxSheetName {
			runes = runes[:maxSheetName-len(suffix)]
		}
		candidate = string(runes) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func writeSheet(f *excelize.File, name string, sheet Sheet) error {
	header := sheet.Header
	if len(header) == 0 {
		header = models.Columns
	}

	if err := setRow(f, name, 1, toCells(header, nil)); err != nil {
		return err
	}
	for i, row := range sheet.Rows {
		if err := setRow(f, name, i+2, toCells(row, header)); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toCells(row []string, header []string) []interface{} {
	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = v
		if header != nil && i < len(header) && numericColumns[header[i]] {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				cells[i] = n
			}
		}
	}
	return cells
}

// ExportWorkbook reads back each account's CSV and writes them as one
// workbook. Accounts without an output file are skipped.
func (m *Manager) ExportWorkbook(path string, accounts []string) (int, error) {
	var sheets []Sheet
	for _, account := range accounts {
		header, rows, err := m.ReadRows(account)
		if err != nil {
			return 0, err
		}
		if header == nil {
			continue
		}
		sheets = append(sheets, Sheet{Name: account, Header: header, Rows: rows})
	}
	if len(sheets) == 0 {
		return 0, nil
	}
	return len(sheets), ExportWorkbook(path, sheets)
}
