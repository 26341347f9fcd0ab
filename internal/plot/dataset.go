// Package plot turns a question about a dataset into a chart by asking the
// model for plotting code and running it in a separate Python process.
package plot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/insight-router/backend/internal/llm"
)

// Dataset is the header and inferred column types of a CSV file. Rows are not
// kept in memory; the Python harness reads the file itself.
type Dataset struct {
	Path    string
	Columns []string
	Types   []string
	Rows    int
}

// LoadDataset scans a CSV file and infers a pandas-style dtype per column.
func LoadDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("dataset %s is empty", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}

	kinds := make([]columnKind, len(header))
	for i := range kinds {
		kinds[i] = columnKind{int: true, float: true, bool: true}
	}

	rows := 0
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset row %d: %w", rows+1, err)
		}
		rows++

		for i := range kinds {
			value := ""
			if i < len(record) {
				value = record[i]
			}
			kinds[i].observe(value)
		}
	}

	types := make([]string, len(kinds))
	for i, k := range kinds {
		types[i] = k.dtype()
	}

	return &Dataset{Path: path, Columns: header, Types: types, Rows: rows}, nil
}

// Shape describes the dataset for the plot prompt.
func (d *Dataset) Shape() llm.DatasetShape {
	cols := make([]llm.ColumnType, len(d.Columns))
	for i, name := range d.Columns {
		cols[i] = llm.ColumnType{Name: name, Type: d.Types[i]}
	}
	return llm.DatasetShape{Rows: d.Rows, Columns: cols}
}

type columnKind struct {
	int, float, bool bool
	missing          bool
	seen             bool
}

func (k *columnKind) observe(value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		k.missing = true
		return
	}
	k.seen = true

	if k.int {
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			k.int = false
		}
	}
	if k.float {
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			k.float = false
		}
	}
	if k.bool {
		switch value {
		case "True", "False", "true", "false", "TRUE", "FALSE":
		default:
			k.bool = false
		}
	}
}

// dtype mirrors how pandas would read the column: missing values force
// integer columns to float64 and boolean columns to object.
func (k columnKind) dtype() string {
	switch {
	case !k.seen:
		return "float64"
	case k.int && !k.missing:
		return "int64"
	case k.int || k.float:
		return "float64"
	case k.bool && !k.missing:
		return "bool"
	default:
		return "object"
	}
}
