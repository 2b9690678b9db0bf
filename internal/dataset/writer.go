package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// WriteRecords exports rows to path, as Parquet for .parquet and JSONL
// otherwise.
func WriteRecords(path string, rows []RecordRow) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if strings.ToLower(filepath.Ext(path)) == ".parquet" {
		if err := parquet.WriteFile(path, rows); err != nil {
			return fmt.Errorf("failed to write parquet file: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := WriteJSONL(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteJSONL writes one JSON object per row.
func WriteJSONL(w io.Writer, rows []RecordRow) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	return nil
}
