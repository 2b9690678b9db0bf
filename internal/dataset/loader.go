package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Loader reads key rows from a file. The format follows the extension:
// .parquet, .jsonl/.json (one object per line), or .txt (one URL or ISBN
// per line).
type Loader struct {
	path string
}

// NewLoader creates a loader for path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load reads every usable row.
func (l *Loader) Load() ([]KeyRow, error) {
	return l.LoadSample(0)
}

// LoadSample reads at most limit usable rows; limit <= 0 reads all.
func (l *Loader) LoadSample(limit int) ([]KeyRow, error) {
	ext := strings.ToLower(filepath.Ext(l.path))

	var (
		rows []KeyRow
		err  error
	)
	switch ext {
	case ".parquet":
		rows, err = l.loadParquet(limit)
	case ".jsonl", ".json":
		rows, err = l.loadJSONL(limit)
	case ".txt", "":
		rows, err = l.loadText(limit)
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .parquet, .jsonl, .txt)", ext)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("Loaded key rows", "path", l.path, "rows", len(rows))
	return rows, nil
}

func full(rows []KeyRow, limit int) bool {
	return limit > 0 && len(rows) >= limit
}

func (l *Loader) loadJSONL(limit int) ([]KeyRow, error) {
	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file: %w", err)
	}
	defer file.Close()

	var rows []KeyRow
	scanner := bufio.NewScanner(file)

	const maxCapacity = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxCapacity)

	lineNum := 0
	for scanner.Scan() && !full(rows, limit) {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var row KeyRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		if row.IsZero() {
			slog.Warn("Skipping key row without URL, ISBN or title", "line", lineNum)
			continue
		}
		rows = append(rows, row)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading key file: %w", err)
	}
	return rows, nil
}

func (l *Loader) loadText(limit int) ([]KeyRow, error) {
	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file: %w", err)
	}
	defer file.Close()

	var rows []KeyRow
	scanner := bufio.NewScanner(file)
	for scanner.Scan() && !full(rows, limit) {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			rows = append(rows, KeyRow{URL: line})
		} else {
			rows = append(rows, KeyRow{ISBN: line})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading key file: %w", err)
	}
	return rows, nil
}

func (l *Loader) loadParquet(limit int) ([]KeyRow, error) {
	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}
	slog.Debug("Parquet file opened", "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[KeyRow](pf)
	defer reader.Close()

	var rows []KeyRow
	batch := make([]KeyRow, 128)
	for !full(rows, limit) {
		n, err := reader.Read(batch)
		for _, row := range batch[:n] {
			if full(rows, limit) {
				break
			}
			if !row.IsZero() {
				rows = append(rows, row)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
	return rows, nil
}
