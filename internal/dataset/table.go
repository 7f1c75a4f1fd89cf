package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"anfis/internal/hybrid"
)

var ErrEmptyDataset = errors.New("dataset has no rows")

// LoadCSV reads a headed CSV file. Every column other than targetColumn is
// a feature, in file order. An empty targetColumn selects the last column.
func LoadCSV(path, targetColumn string) ([]hybrid.Pair, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("dataset path is required")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	pairs, err := ReadCSV(file, targetColumn)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return pairs, nil
}

func ReadCSV(in io.Reader, targetColumn string) ([]hybrid.Pair, error) {
	reader := csv.NewReader(in)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyDataset
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("csv needs at least one feature and one target column, got %d columns", len(header))
	}
	target, err := targetIndex(header, targetColumn)
	if err != nil {
		return nil, err
	}

	pairs := make([]hybrid.Pair, 0, 64)
	rowIndex := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", rowIndex, err)
		}
		if blankRecord(record) {
			continue
		}

		pair := hybrid.Pair{Features: make([]float64, 0, len(record)-1)}
		for i, raw := range record {
			value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, fmt.Errorf("parse csv row %d column %q: %w", rowIndex, header[i], err)
			}
			if i == target {
				pair.Target = value
			} else {
				pair.Features = append(pair.Features, value)
			}
		}
		pairs = append(pairs, pair)
		rowIndex++
	}
	if len(pairs) == 0 {
		return nil, ErrEmptyDataset
	}
	return pairs, nil
}

// WriteCSV writes pairs with columns x1..xn followed by target.
func WriteCSV(w io.Writer, pairs []hybrid.Pair) error {
	if len(pairs) == 0 {
		return ErrEmptyDataset
	}
	writer := csv.NewWriter(w)
	header := make([]string, 0, len(pairs[0].Features)+1)
	for i := range pairs[0].Features {
		header = append(header, "x"+strconv.Itoa(i+1))
	}
	header = append(header, "target")
	if err := writer.Write(header); err != nil {
		return err
	}
	for i, pair := range pairs {
		if len(pair.Features) != len(pairs[0].Features) {
			return fmt.Errorf("pair %d has %d features, want %d", i, len(pair.Features), len(pairs[0].Features))
		}
		record := make([]string, 0, len(header))
		for _, v := range pair.Features {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		record = append(record, strconv.FormatFloat(pair.Target, 'g', -1, 64))
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func targetIndex(header []string, column string) (int, error) {
	column = strings.TrimSpace(column)
	if column == "" {
		return len(header) - 1, nil
	}
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), column) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("target column %q not found in header %v", column, header)
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
