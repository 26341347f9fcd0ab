package ida

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrUnsupported marks files the job does not read.
var ErrUnsupported = errors.New("unsupported source file")

var whitespace = regexp.MustCompile(`\s+`)

// LoadSource returns the text handed to the extractor for one input file.
func LoadSource(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		return string(data), nil
	case ".csv":
		return csvToText(path)
	case ".html", ".htm":
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		return htmlToText(f)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}
}

// csvToText summarizes a table and renders it as markdown.
func csvToText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("empty csv file %s", path)
	}

	header, records := rows[0], rows[1:]

	var b strings.Builder
	fmt.Fprintf(&b, "CSV File Summary:\n- Total Records: %d\n- Columns: %s\n\n", len(records), strings.Join(header, ", "))
	writeMarkdownRow(&b, header)

	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	writeMarkdownRow(&b, sep)

	for _, rec := range records {
		row := make([]string, len(header))
		copy(row, rec)
		writeMarkdownRow(&b, row)
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func writeMarkdownRow(b *strings.Builder, cells []string) {
	b.WriteString("|")
	for _, c := range cells {
		b.WriteString(" ")
		b.WriteString(strings.ReplaceAll(c, "|", `\|`))
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

func htmlToText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, nav, footer, header, aside").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	text := strings.TrimSpace(whitespace.ReplaceAllString(doc.Find("body").Text(), " "))
	if text == "" {
		return "", errors.New("no content extracted from html")
	}

	if title != "" && !strings.HasPrefix(text, title) {
		text = title + "\n\n" + text
	}
	return text, nil
}
