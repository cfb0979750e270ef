package analytics

import (
	"encoding/csv"
	"io"

	"github.com/quantora/trademetrics/pkg/errors"
)

// ReadCSVRows reads a CSV export into raw payload rows keyed by the source
// header names. Header normalization happens later, in ParseRecord.
func ReadCSVRows(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New(errors.ErrCodeImportFailed, "csv file is empty")
	}

	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeImportFailed, "failed to read csv header", err)
	}

	var rows []map[string]string

	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeImportFailed, "failed to read csv row", err)
		}

		row := make(map[string]string, len(header))

		for i, name := range header {
			if i < len(fields) {
				row[name] = fields[i]
			}
		}

		rows = append(rows, row)
	}

	return rows, nil
}
