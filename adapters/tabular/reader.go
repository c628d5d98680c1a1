// Package tabular loads validation and training frames from CSV and Excel
// files.
package tabular

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"causalscore/internal"
	"causalscore/internal/errors"
	"causalscore/internal/frame"

	"github.com/xuri/excelize/v2"
)

// DefaultSheet is read from workbooks unless WithSheet names another
const DefaultSheet = "Sheet1"

// DataReader reads one CSV or XLSX file into a numeric frame
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
	logger   *internal.Logger
}

// Option configures a DataReader
type Option func(*DataReader)

// WithSheet selects the workbook sheet to read
func WithSheet(name string) Option {
	return func(r *DataReader) { r.sheet = name }
}

// WithLogger sets the logger for read timings
func WithLogger(l *internal.Logger) Option {
	return func(r *DataReader) { r.logger = l }
}

// NewDataReader creates a reader; the file type follows the extension
func NewDataReader(filePath string, opts ...Option) *DataReader {
	fileType := "xlsx"
	if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		fileType = "csv"
	}
	r := &DataReader{filePath: filePath, fileType: fileType, sheet: DefaultSheet, logger: internal.DefaultLogger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadFrame reads the file. Every cell must be numeric or a boolean; true and
// false become 1 and 0. With columns given, only those are kept, in order.
func (r *DataReader) ReadFrame(columns ...string) (*frame.Frame, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.MalformedInput(fmt.Sprintf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath))
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSV()
	default:
		rows, err = r.readExcel()
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, errors.MalformedInput(fmt.Sprintf("%s must have a header row and at least one data row", r.filePath))
	}

	df, err := r.processRows(rows)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return df, nil
	}
	return df.Select(columns...)
}

func (r *DataReader) readExcel() ([][]string, error) {
	start := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open Excel file")
	}
	defer f.Close()

	rows, err := f.GetRows(r.sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sheet %s", r.sheet)
	}
	r.logger.Debug("[DataReader] %s read in %.2fms (%d rows)", r.sheet, float64(time.Since(start).Nanoseconds())/1e6, len(rows))
	return rows, nil
}

func (r *DataReader) readCSV() ([][]string, error) {
	start := time.Now()
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open CSV file")
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CSV file")
	}
	r.logger.Debug("[DataReader] CSV file read in %.2fms (%d rows)", float64(time.Since(start).Nanoseconds())/1e6, len(rows))
	return rows, nil
}

// processRows converts the header and data rows into frame columns
func (r *DataReader) processRows(rows [][]string) (*frame.Frame, error) {
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
		if headers[i] == "" {
			return nil, errors.MalformedInput(fmt.Sprintf("column %d has an empty header", i+1))
		}
	}

	cols := make([][]float64, len(headers))
	for j := range cols {
		cols[j] = make([]float64, 0, len(rows)-1)
	}
	for i, row := range rows[1:] {
		if len(row) > len(headers) {
			return nil, errors.MalformedInput(fmt.Sprintf("row %d has %d cells for %d columns", i+2, len(row), len(headers)))
		}
		for j := range headers {
			var cell string
			if j < len(row) {
				cell = row[j]
			}
			v, err := parseCell(cell)
			if err != nil {
				return nil, errors.MalformedInput(fmt.Sprintf("row %d, column %s: %v", i+2, headers[j], err))
			}
			cols[j] = append(cols[j], v)
		}
	}

	r.logger.Debug("[DataReader] %s file processed (%d columns, %d rows)", strings.ToUpper(r.fileType), len(headers), len(rows)-1)
	df, err := frame.New(headers, cols)
	if err != nil {
		return nil, errors.MalformedInput(err.Error())
	}
	return df, nil
}

func parseCell(cell string) (float64, error) {
	s := strings.TrimSpace(cell)
	switch strings.ToLower(s) {
	case "":
		return 0, fmt.Errorf("empty cell")
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
