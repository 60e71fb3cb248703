package storage

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"notecrawler/pkg/models"
)

func TestSheetName(t *testing.T) {
	assert.Equal(t, "北京大学", SheetName("北京大学"))
	assert.Equal(t, "a_b_c", SheetName("a/b:c"))
	assert.Equal(t, "Sheet", SheetName("  "))

	long := strings.Repeat("长", 40)
	assert.Equal(t, 30, len([]rune(SheetName(long))))
}

func TestUniqueSheetName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "pku", uniqueSheetName("pku", used))
	assert.Equal(t, "PKU~2", uniqueSheetName("PKU", used))
	assert.Equal(t, "pku~3", uniqueSheetName("pku", used))
}

func TestExportWorkbook(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	require.NoError(t, m.Append("pku", []models.ItemRecord{record("n1", 12000), record("n2", 5)}))
	require.NoError(t, m.Append("thu", []models.ItemRecord{record("n3", 7)}))

	path := filepath.Join(dir, "notes.xlsx")
	n, err := m.ExportWorkbook(path, []string{"pku", "thu", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"pku", "thu"}, f.GetSheetList())

	rows, err := f.GetRows("pku")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "item_id", rows[0][0])
	assert.Equal(t, "n1", rows[1][0])
	assert.Equal(t, "12000", rows[1][5])

	cellType, err := f.GetCellType("pku", "F2")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeSharedString, cellType, "counts are stored as numbers")
}

func TestExportWorkbookWithoutData(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	n, err := m.ExportWorkbook(filepath.Join(dir, "notes.xlsx"), []string{"pku"})
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Error(t, ExportWorkbook(filepath.Join(dir, "x.xlsx"), nil))
}
