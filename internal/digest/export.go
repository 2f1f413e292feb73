package digest

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PratikDhanave/offhours-digest/internal/models"
)

// ExportStore keeps export artifacts.
type ExportStore interface {
	CreateExport(ctx context.Context, name string, content []byte) (uuid.UUID, error)
}

// CSVExporter writes records as a CSV artifact served under
// {publicBaseURL}/exports/{id}. Timestamps are written in loc.
type CSVExporter struct {
	store   ExportStore
	baseURL string
	loc     *time.Location
}

func NewCSVExporter(st ExportStore, publicBaseURL string, loc *time.Location) *CSVExporter {
	if loc == nil {
		loc = time.Local
	}
	return &CSVExporter{store: st, baseURL: strings.TrimRight(publicBaseURL, "/"), loc: loc}
}

func (e *CSVExporter) Export(ctx context.Context, name string, records []models.EventRecord) (string, error) {
	content, err := EncodeCSV(records, e.loc)
	if err != nil {
		return "", err
	}
	id, err := e.store.CreateExport(ctx, name, content)
	if err != nil {
		return "", fmt.Errorf("store export %s: %w", name, err)
	}
	return e.baseURL + "/exports/" + id.String(), nil
}

// EncodeCSV renders records with a header row in Events column order, with
// timestamps converted to loc.
func EncodeCSV(records []models.EventRecord, loc *time.Location) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(models.EventColumns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		r.Timestamp = r.Timestamp.In(loc)
		if err := w.Write(r.Fields()); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
