package storage

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"notecrawler/pkg/models"
)

// CSVSuffix ends every per-account output file
const CSVSuffix = "_notes.csv"

// utf8BOM lets spreadsheet tools detect the encoding
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Manager owns the per-account CSV files in the output directory
type Manager struct {
	outputDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a new storage manager
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Manager{
		outputDir: outputDir,
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

// CSVPath returns the output file of an account
func (m *Manager) CSVPath(account string) string {
	return filepath.Join(m.outputDir, safeName(account)+CSVSuffix)
}

func safeName(account string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", string(os.PathSeparator), "_")
	return r.Replace(strings.TrimSpace(account))
}

// fileLock serialises writers of one file
func (m *Manager) fileLock(path string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[path]
	if !ok {
		l = &sync.Mutex{}
		m.locks[path] = l
	}
	return l
}

// Append writes records to the account's CSV. A new file starts with a
// byte-order mark and the header row; an existing one only gets rows.
func (m *Manager) Append(account string, records []models.ItemRecord) error {
	if len(records) == 0 {
		return nil
	}
	path := m.CSVPath(account)
	lock := m.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	if _, err := trimTornRow(path, true); err != nil {
		return err
	}
	isNew := true
	if st, err := os.Stat(path); err == nil && st.Size() > 0 {
		isNew = false
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	if err := writeRows(file, isNew, records); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	return file.Close()
}

func writeRows(w io.Writer, withHeader bool, records []models.ItemRecord) error {
	if withHeader {
		if _, err := w.Write(utf8BOM); err != nil {
			return err
		}
	}
	cw := csv.NewWriter(w)
	if withHeader {
		if err := cw.Write(models.Columns); err != nil {
			return err
		}
	}
	for _, rec := range records {
		if err := cw.Write(rec.Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRows returns the header and rows of an account's CSV. A missing file
// yields no rows and no error. A final row cut short by an interrupted
// write is left out.
func (m *Manager) ReadRows(account string) ([]string, [][]string, error) {
	path := m.CSVPath(account)
	lock := m.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	all, _, err := parseRows(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

// Repair cuts a torn final row off an account's CSV and reports whether
// anything was removed
func (m *Manager) Repair(account string) (bool, error) {
	path := m.CSVPath(account)
	lock := m.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	return trimTornRow(path, false)
}

// trimTornRow truncates path to its last complete row. With quick set a
// file ending in a newline is trusted without being parsed.
func trimTornRow(path string, quick bool) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 || (quick && data[len(data)-1] == '\n') {
		return false, nil
	}

	_, torn, err := parseRows(data)
	if err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if torn < 0 {
		return false, nil
	}
	if err := os.Truncate(path, torn); err != nil {
		return false, fmt.Errorf("failed to truncate %s: %w", path, err)
	}
	return true, nil
}

// parseRows reads every record of a CSV file. torn is the byte offset where
// an incomplete final record starts, or -1. Damage followed by readable
// records is an error.
func parseRows(data []byte) (records [][]string, torn int64, err error) {
	skip := int64(0)
	if bytes.HasPrefix(data, utf8BOM) {
		skip = int64(len(utf8BOM))
	}

	r := csv.NewReader(bytes.NewReader(data[skip:]))
	r.FieldsPerRecord = -1

	var start, end int64
	for {
		record, rerr := r.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			for {
				_, nerr := r.Read()
				if nerr == io.EOF {
					if len(records) == 0 {
						return nil, 0, nil
					}
					return records, skip + end, nil
				}
				if nerr == nil {
					return nil, -1, rerr
				}
			}
		}
		records = append(records, record)
		start, end = end, r.InputOffset()
	}

	// A header is never written without its line ending, and a short last
	// row without one was cut mid-write.
	n := len(records)
	ended := len(data) > 0 && data[len(data)-1] == '\n'
	switch {
	case n == 0 && skip > 0, n == 1 && !ended:
		return nil, 0, nil
	case n > 1 && !ended && len(records[n-1]) < len(records[0]):
		return records[:n-1], skip + start, nil
	}
	return records, -1, nil
}

// ExistingIDs scans an account's CSV for item ids already written. The
// crawler merges them into the checkpoint so a crash between the CSV append
// and the checkpoint save cannot duplicate rows.
func (m *Manager) ExistingIDs(account string) ([]string, error) {
	header, rows, err := m.ReadRows(account)
	if err != nil {
		return nil, err
	}

	col := 0
	for i, name := range header {
		if name == models.Columns[0] {
			col = i
			break
		}
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if col < len(row) && row[col] != "" {
			ids = append(ids, row[col])
		}
	}
	return ids, nil
}

// Accounts lists the accounts that have an output file, sorted by name
func (m *Manager) Accounts() ([]string, error) {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var accounts []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, CSVSuffix) {
			continue
		}
		accounts = append(accounts, strings.TrimSuffix(name, CSVSuffix))
	}
	sort.Strings(accounts)
	return accounts, nil
}
