package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
	"github.com/ajitpratap0/prepdash/pkg/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeCSV parses UTF-8 CSV text with a header row into a dataset, inferring
// column types from the cells. Blank header names become "Unnamed: i" and
// repeated names get ".1", ".2" suffixes. Any read failure is a parse error.
func DecodeCSV(r io.Reader) (*dataset.Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeParse, "could not read CSV input")
	}
	if !utf8.Valid(data) {
		return nil, errors.New(errors.ErrorTypeParse, "CSV input is not valid UTF-8")
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeParse, "malformed CSV")
	}
	if len(records) == 0 {
		return nil, errors.New(errors.ErrorTypeParse, "CSV input has no header row")
	}

	header := headerNames(records[0])
	body := records[1:]
	columns := make([]*dataset.Column, len(header))
	tokens := make([]string, len(body))
	for j, name := range header {
		for i, rec := range body {
			tokens[i] = rec[j]
		}
		col, err := dataset.InferColumn(name, tokens)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeParse, "invalid CSV column").
				WithDetail("column", name)
		}
		columns[j] = col
	}
	ds, err := dataset.New(columns...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeParse, "invalid CSV header")
	}
	return ds, nil
}

func headerNames(raw []string) []string {
	names := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	suffix := make(map[string]int)
	for i, n := range raw {
		if strings.TrimSpace(n) == "" {
			n = fmt.Sprintf("Unnamed: %d", i)
		}
		name := n
		for used[name] {
			suffix[n]++
			name = fmt.Sprintf("%s.%d", n, suffix[n])
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// DecodeDataURL extracts the payload of a base64 data URL such as the
// "data:text/csv;base64,..." strings produced by browser upload widgets.
func DecodeDataURL(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "data:") {
		return nil, errors.New(errors.ErrorTypeParse, "upload contents are not a data URL")
	}
	meta, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return nil, errors.New(errors.ErrorTypeParse, "data URL has no payload")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return []byte(payload), nil
	}
	out, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeParse, "data URL payload is not base64")
	}
	return out, nil
}
