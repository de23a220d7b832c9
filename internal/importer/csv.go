// Package importer parses transaction CSV files into validated domain
// records. A file either parses completely or not at all, so callers can
// persist the result as a single batch.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

var ErrMissingColumns = errors.New("csv header must contain date, amount and category columns")

// Expected header names, matched case-insensitively. The is_ prefix on flag
// columns is optional.
const (
	colDate        = "date"
	colAmount      = "amount"
	colCategory    = "category"
	colDescription = "description"
	colSavings     = "savings"
	colDeduction   = "deduction"
	colFixed       = "fixed"
)

// ParseCSV reads the whole file and returns one validated transaction per
// row, each stamped with sourceFile for provenance. Any malformed row fails
// the entire file.
func ParseCSV(r io.Reader, sourceFile string) ([]core.Transaction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: empty file", sourceFile)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", sourceFile, err)
	}

	cols := columnIndex(header)
	for _, required := range []string{colDate, colAmount, colCategory} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%s: %w", sourceFile, ErrMissingColumns)
		}
	}

	var transactions []core.Transaction
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", sourceFile, line, err)
		}

		tx, err := parseRow(record, cols)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", sourceFile, line, err)
		}
		tx.SourceFile = sourceFile
		transactions = append(transactions, tx)
	}

	return transactions, nil
}

func parseRow(record []string, cols map[string]int) (core.Transaction, error) {
	date, err := time.ParseInLocation("2006-01-02", field(record, cols, colDate), time.UTC)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date: %w", err)
	}
	amount, err := decimal.NewFromString(field(record, cols, colAmount))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount: %w", err)
	}

	tx, err := core.NewTransaction(date, amount, field(record, cols, colCategory))
	if err != nil {
		return core.Transaction{}, err
	}
	tx.Description = field(record, cols, colDescription)

	if tx.IsSavings, err = flag(record, cols, colSavings); err != nil {
		return core.Transaction{}, err
	}
	if tx.IsDeduction, err = flag(record, cols, colDeduction); err != nil {
		return core.Transaction{}, err
	}
	if tx.IsFixed, err = flag(record, cols, colFixed); err != nil {
		return core.Transaction{}, err
	}

	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		name = strings.TrimPrefix(name, "is_")
		cols[name] = i
	}
	return cols
}

func field(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func flag(record []string, cols map[string]int, name string) (bool, error) {
	raw := field(record, cols, name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		return false, fmt.Errorf("parse %s flag %q: %w", name, raw, err)
	}
	return v, nil
}
