// Package output persists the final artifact of a scrape run: the JSON
// document the deck UI consumes, an optional CSV card export, or both.
package output

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/deckcheck/inventory-scraper/models"
)

// Writer persists one finished artifact. The orchestrator is the only
// writer for a run and calls Write exactly once.
type Writer interface {
	Write(out *models.ScrapeOutput) error
	Close() error
	Validate() error
}

// JSONWriter writes the artifact as one indented JSON document.
type JSONWriter struct {
	file   *os.File
	writer *bufio.Writer
}

// NewJSONWriter creates (or truncates) the artifact file at filename.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	return &JSONWriter{
		file:   f,
		writer: bufio.NewWriter(f),
	}, nil
}

// Write encodes the artifact document.
func (jw *JSONWriter) Write(out *models.ScrapeOutput) error {
	encoder := json.NewEncoder(jw.writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the artifact has been written.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

// CSVWriter exports the artifact's cards as a flat table.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
}

var csvHeader = []string{
	"name", "rarity", "colors", "foil",
	"collection_id", "collection_name", "set_code",
	"price_cents", "total_stock", "conditions",
	"image_url", "detail_url",
}

// NewCSVWriter initialises a CSV export and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends one row per card in the artifact.
func (cw *CSVWriter) Write(out *models.ScrapeOutput) error {
	for _, card := range out.Cards {
		record := []string{
			card.Name,
			card.Rarity,
			strings.Join(card.Colors, ";"),
			strconv.FormatBool(card.Foil),
			card.CollectionID,
			card.CollectionName,
			card.SetCode,
			strconv.Itoa(card.Price),
			strconv.Itoa(card.Stock),
			conditionsCell(card.Conditions),
			card.ImageURL,
			card.DetailURL,
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// conditionsCell flattens a card's per-condition breakdown into one
// cell, "NM/M:150x3|HP:40x1" style.
func conditionsCell(offers []models.ConditionOffer) string {
	parts := make([]string, len(offers))
	for i, offer := range offers {
		parts[i] = fmt.Sprintf("%s:%dx%d", offer.Condition, offer.PriceCents, offer.Stock)
	}
	return strings.Join(parts, "|")
}

// DualWriter writes the JSON artifact and the CSV export together.
type DualWriter struct {
	jsonWriter *JSONWriter
	csvWriter  *CSVWriter
}

// NewDualWriter creates both underlying writers.
func NewDualWriter(jsonFilename, csvFilename string) (*DualWriter, error) {
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		return nil, fmt.Errorf("create json writer: %w", err)
	}

	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		jsonWriter.Close()
		return nil, fmt.Errorf("create csv writer: %w", err)
	}

	return &DualWriter{
		jsonWriter: jsonWriter,
		csvWriter:  csvWriter,
	}, nil
}

// Write writes the artifact to both outputs.
func (dw *DualWriter) Write(out *models.ScrapeOutput) error {
	if err := dw.jsonWriter.Write(out); err != nil {
		return fmt.Errorf("json write failed: %w", err)
	}
	if err := dw.csvWriter.Write(out); err != nil {
		return fmt.Errorf("csv write failed: %w", err)
	}
	return nil
}

// Close closes both writers.
func (dw *DualWriter) Close() error {
	var errs []error
	if err := dw.jsonWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("json close failed: %w", err))
	}
	if err := dw.csvWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("csv close failed: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("multiple errors: %v", errs)
	}
	return nil
}

// Validate validates both output files.
func (dw *DualWriter) Validate() error {
	var errs []error
	if err := dw.jsonWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("json validation failed: %w", err))
	}
	if err := dw.csvWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("csv validation failed: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %v", errs)
	}
	return nil
}

// NewWriter builds the writer for the configured format. The dual
// format writes the JSON artifact at path plus a CSV export beside it.
func NewWriter(format, path string) (Writer, error) {
	switch format {
	case "json":
		return NewJSONWriter(path)
	case "csv":
		return NewCSVWriter(path)
	case "dual":
		csvPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".csv"
		return NewDualWriter(path, csvPath)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// WritePartial dumps the reduced abort artifact straight to path,
// overwriting whatever is there. It is the best-effort last write of a
// failing run, so it takes no writer state.
func WritePartial(path string, partial *models.PartialOutput) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create partial output: %w", err)
	}

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(partial); err != nil {
		f.Close()
		return fmt.Errorf("encode partial output: %w", err)
	}
	return f.Close()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
