package events

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// AuditHeader is the CSV header of the audit log.
const AuditHeader = "id,timestamp,type,transaction_id,transaction_number,account_id,count,details"

const (
	numFields    = 8
	colID        = 0
	colTimestamp = 1
	colType      = 2
	colTxnID     = 3
	colTxnNumber = 4
	colAccountID = 5
	colCount     = 6
	colDetails   = 7
)

// AuditLog appends every event to a CSV file.
type AuditLog struct {
	mu   sync.Mutex
	path string
}

// NewAuditLog writes to path, creating parent directories on first use.
func NewAuditLog(path string) *AuditLog {
	return &AuditLog{path: path}
}

// Publish implements Publisher.
func (l *AuditLog) Publish(_ context.Context, e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return appendEvents(l.path, []Event{e})
}

// Read returns every event in the log, oldest first.
func (l *AuditLog) Read() ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()
	return readEvents(f)
}

// MarshalEvent converts an Event to a CSV row.
func MarshalEvent(e Event) []string {
	row := make([]string, numFields)
	row[colID] = e.ID
	row[colTimestamp] = e.OccurredAt.Format(time.RFC3339Nano)
	row[colType] = e.Type
	row[colTxnID] = formatOptional(e.TransactionID)
	row[colTxnNumber] = formatOptional(e.TransactionNumber)
	row[colAccountID] = formatOptional(e.AccountID)
	row[colCount] = formatOptional(int64(e.Count))
	row[colDetails] = e.Details
	return row
}

// UnmarshalEvent converts a CSV row to an Event.
func UnmarshalEvent(record []string) (Event, error) {
	if len(record) != numFields {
		return Event{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}
	ts, err := time.Parse(time.RFC3339Nano, record[colTimestamp])
	if err != nil {
		return Event{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}
	e := Event{ID: record[colID], OccurredAt: ts, Type: record[colType], Details: record[colDetails]}

	ints := []struct {
		col int
		dst *int64
	}{
		{colTxnID, &e.TransactionID},
		{colTxnNumber, &e.TransactionNumber},
		{colAccountID, &e.AccountID},
	}
	for _, f := range ints {
		if *f.dst, err = parseOptional(record[f.col]); err != nil {
			return Event{}, err
		}
	}
	count, err := parseOptional(record[colCount])
	if err != nil {
		return Event{}, err
	}
	e.Count = int(count)
	return e, nil
}

func formatOptional(n int64) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatInt(n, 10)
}

func parseOptional(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %q: %w", s, err)
	}
	return n, nil
}

func appendEvents(path string, evts []Event) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating audit log dir: %w", err)
	}

	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(strings.Split(AuditHeader, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for i, e := range evts {
		if err := cw.Write(MarshalEvent(e)); err != nil {
			return fmt.Errorf("writing event %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func readEvents(r io.Reader) ([]Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading audit log CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	var out []Event
	for i, rec := range records[1:] {
		e, err := UnmarshalEvent(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, e)
	}
	return out, nil
}
