package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"notecrawler/pkg/models"
)

func record(id string, likes int64) models.ItemRecord {
	return models.ItemRecord{
		ItemStub:    models.ItemStub{ItemID: id, SecondaryToken: "tok-" + id, Type: "normal", Title: "title " + id},
		Content:     "body, with comma",
		LikeCount:   likes,
		PublishTime: "2023-11-14 22:13:20",
	}
}

func TestAppendCreatesFileWithBOMAndHeader(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "output"))
	require.NoError(t, err)

	require.NoError(t, m.Append("北京大学", []models.ItemRecord{record("n1", 12000)}))

	data, err := os.ReadFile(m.CSVPath("北京大学"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))

	lines := strings.Split(strings.TrimSpace(string(bytes.TrimPrefix(data, utf8BOM))), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(models.Columns, ","), lines[0])
	assert.Equal(t, `n1,tok-n1,normal,title n1,"body, with comma",12000,0,0,0,2023-11-14 22:13:20`, lines[1])
}

func TestAppendToExistingFileSkipsHeader(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, m.Append("pku", []models.ItemRecord{record("n1", 1)}))
	require.NoError(t, m.Append("pku", []models.ItemRecord{record("n2", 2), record("n3", 3)}))
	require.NoError(t, m.Append("pku", nil))

	data, err := os.ReadFile(m.CSVPath("pku"))
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(data, utf8BOM), "BOM is written once")
	assert.Equal(t, 1, strings.Count(string(data), "item_id,"), "header is written once")

	header, rows, err := m.ReadRows("pku")
	require.NoError(t, err)
	assert.Equal(t, models.Columns, header)
	require.Len(t, rows, 3)
	assert.Equal(t, "n3", rows[2][0])
}

func TestEmptyExistingFileGetsHeader(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.CSVPath("pku"), nil, 0644))

	require.NoError(t, m.Append("pku", []models.ItemRecord{record("n1", 1)}))
	header, rows, err := m.ReadRows("pku")
	require.NoError(t, err)
	assert.Equal(t, models.Columns, header)
	assert.Len(t, rows, 1)
}

func TestExistingIDs(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	ids, err := m.ExistingIDs("missing")
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, m.Append("pku", []models.ItemRecord{record("n1", 1), record("n2", 2)}))
	ids, err = m.ExistingIDs("pku")
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n2"}, ids)
}

// appendRaw simulates a write cut short by a crash
func appendRaw(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestTornFinalRowIsIgnored(t *testing.T) {
	tests := []struct {
		name string
		tail string
	}{
		{"open quote", `n2,tok-n2,normal,"half written, tit`},
		{"short row", `n2,tok-n2,nor`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager(t.TempDir())
			require.NoError(t, err)
			require.NoError(t, m.Append("pku", []models.ItemRecord{record("n1", 1)}))
			appendRaw(t, m.CSVPath("pku"), tt.tail)

			ids, err := m.ExistingIDs("pku")
			require.NoError(t, err)
			assert.Equal(t, []string{"n1"}, ids)
		})
	}
}

func TestAppendAfterTornRowRestoresFile(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, m.Append("pku", []models.ItemRecord{record("n1", 1)}))
	appendRaw(t, m.CSVPath("pku"), `n2,tok-n2,normal,"half written, tit`)

	require.NoError(t, m.Append("pku", []models.ItemRecord{record("n2", 2)}))

	header, rows, err := m.ReadRows("pku")
	require.NoError(t, err)
	assert.Equal(t, models.Columns, header)
	require.Len(t, rows, 2)
	assert.Equal(t, "n2", rows[1][0])
	assert.Equal(t, "title n2", rows[1][3])
}

func TestRepair(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	repaired, err := m.Repair("missing")
	require.NoError(t, err)
	assert.False(t, repaired)

	require.NoError(t, m.Append("pku", []models.ItemRecord{record("n1", 1)}))
	clean, err := os.ReadFile(m.CSVPath("pku"))
	require.NoError(t, err)

	repaired, err = m.Repair("pku")
	require.NoError(t, err)
	assert.False(t, repaired)

	appendRaw(t, m.CSVPath("pku"), `n2,tok-n2,normal,"half`)
	repaired, err = m.Repair("pku")
	require.NoError(t, err)
	assert.True(t, repaired)

	data, err := os.ReadFile(m.CSVPath("pku"))
	require.NoError(t, err)
	assert.Equal(t, clean, data)
}

func TestTornHeaderStartsFileOver(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.CSVPath("pku"), append(append([]byte{}, utf8BOM...), "item_id,xsec"...), 0644))

	require.NoError(t, m.Append("pku", []models.ItemRecord{record("n1", 1)}))

	data, err := os.ReadFile(m.CSVPath("pku"))
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(data, utf8BOM))
	header, rows, err := m.ReadRows("pku")
	require.NoError(t, err)
	assert.Equal(t, models.Columns, header)
	assert.Len(t, rows, 1)
}

func TestDamageBeforeLastRowIsAnError(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, m.Append("pku", []models.ItemRecord{record("n1", 1)}))
	appendRaw(t, m.CSVPath("pku"), "n2,to\"k,normal\n")
	require.NoError(t, m.Append("pku", []models.ItemRecord{record("n3", 3)}))

	_, err = m.ExistingIDs("pku")
	assert.Error(t, err)
}

func TestConcurrentAppendsDoNotInterleave(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			batch := []models.ItemRecord{
				record(fmt.Sprintf("w%d-a", w), 1),
				record(fmt.Sprintf("w%d-b", w), 2),
			}
			assert.NoError(t, m.Append("shared", batch))
		}(w)
	}
	wg.Wait()

	header, rows, err := m.ReadRows("shared")
	require.NoError(t, err)
	assert.Equal(t, models.Columns, header)
	assert.Len(t, rows, 16)
	for _, row := range rows {
		assert.Len(t, row, len(models.Columns))
	}
}

func TestAccounts(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	require.NoError(t, m.Append("thu", []models.ItemRecord{record("n1", 1)}))
	require.NoError(t, m.Append("pku", []models.ItemRecord{record("n2", 1)}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "processed_ids.json"), []byte("[]"), 0644))

	accounts, err := m.Accounts()
	require.NoError(t, err)
	assert.Equal(t, []string{"pku", "thu"}, accounts)
}

func TestCSVPathSanitisesSeparators(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a_b_notes.csv"), m.CSVPath("a/b"))
}
