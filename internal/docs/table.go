package docs

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	previewRows       = 5
	previewCols       = 10
	maxSummaryLength  = 4000
	delimiterSniffLen = 10 * 1024
)

var candidateDelimiters = []rune{',', ';', '\t', '|'}

// readCSV parses a CSV file, guessing the delimiter from the first lines.
func readCSV(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return rows, nil
}

// sniffDelimiter picks the candidate that splits the sample lines into the
// same number of fields most often, preferring more fields.
func sniffDelimiter(data []byte) rune {
	sample := data
	if len(sample) > delimiterSniffLen {
		sample = sample[:delimiterSniffLen]
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(sample))
	for sc.Scan() && len(lines) < 20 {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			lines = append(lines, l)
		}
	}

	best, bestScore := ',', 0
	for _, d := range candidateDelimiters {
		counts := map[int]int{}
		for _, l := range lines {
			if n := strings.Count(l, string(d)); n > 0 {
				counts[n]++
			}
		}
		for fields, freq := range counts {
			if score := freq*100 + fields; score > bestScore {
				best, bestScore = d, score
			}
		}
	}
	return best
}

// readXLSX returns the rows of the first sheet.
func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

// summarizeTable describes a table by its shape, header and first rows. The
// first non-empty row is the header. ok is false for a table without data.
func summarizeTable(rows [][]string) (string, bool) {
	var nonEmpty [][]string
	for _, r := range rows {
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				nonEmpty = append(nonEmpty, r)
				break
			}
		}
	}
	if len(nonEmpty) == 0 {
		return "", false
	}

	header, body := nonEmpty[0], nonEmpty[1:]
	cols := len(header)
	for _, r := range body {
		cols = max(cols, len(r))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Таблица содержит %d строк и %d колонок.\n", len(body), cols)
	fmt.Fprintf(&sb, "Заголовки: %s\n\n", strings.Join(header, ", "))
	fmt.Fprintf(&sb, "Первые несколько строк (до %d строк, до %d колонок):\n", previewRows, previewCols)
	for i, r := range body {
		if i == previewRows {
			break
		}
		if len(r) > previewCols {
			r = r[:previewCols]
		}
		sb.WriteString(strings.Join(r, " | "))
		sb.WriteString("\n")
	}
	if cols > previewCols {
		sb.WriteString("... (колонки урезаны)\n")
	}
	if len(body) > previewRows {
		sb.WriteString("... (строки урезаны)\n")
	}

	s := strings.TrimRight(sb.String(), "\n")
	if utf8.RuneCountInString(s) > maxSummaryLength {
		s = string([]rune(s)[:maxSummaryLength])
	}
	return s, true
}
