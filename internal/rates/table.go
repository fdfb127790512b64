package rates

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Table is an immutable, load-ordered set of rate records.
// Lookups need no locking; a new Table is built to change rates.
type Table struct {
	records     []Record
	continents  []string
	byContinent map[string][]Record
	byCountry   map[string]int
	version     string
}

// NewTable indexes records in the given order. Iteration order equals load order.
func NewTable(records []Record) *Table {
	t := &Table{
		records:     append([]Record(nil), records...),
		byContinent: map[string][]Record{},
		byCountry:   map[string]int{},
	}
	h := sha256.New()
	for i, r := range t.records {
		if _, ok := t.byContinent[r.Continent]; !ok {
			t.continents = append(t.continents, r.Continent)
		}
		t.byContinent[r.Continent] = append(t.byContinent[r.Continent], r)
		if _, ok := t.byCountry[r.Country]; !ok {
			t.byCountry[r.Country] = i
		}
		fmt.Fprintf(h, "%s|%s|%s|%s|%s\n", r.Continent, r.Country, r.Prefix, r.MinRate, r.MaxRate)
	}
	t.version = hex.EncodeToString(h.Sum(nil))[:16]
	return t
}

var requiredColumns = []string{"continent", "country", "country code", "price/minute"}

// Load parses a rate sheet with header Continent, Country, Country Code, Price/Minute.
// Malformed rows are skipped with a warning. A missing or unusable header is an error.
func Load(r io.Reader, log *slog.Logger) (*Table, error) {
	if log == nil {
		log = slog.Default()
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("rates: read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	cols := make([]int, len(requiredColumns))
	for i, name := range requiredColumns {
		j, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("rates: missing column %q", name)
		}
		cols[i] = j
	}

	var records []Record
	line := 1
	for {
		row, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn("rate row unreadable, skipping", "line", line, "err", err)
			continue
		}
		rec, err := parseRow(row, cols)
		if err != nil {
			log.Warn("rate row malformed, skipping", "line", line, "err", err)
			continue
		}
		records = append(records, rec)
	}
	return NewTable(records), nil
}

func parseRow(row []string, cols []int) (Record, error) {
	for _, c := range cols {
		if c >= len(row) {
			return Record{}, fmt.Errorf("expected %d columns, got %d", c+1, len(row))
		}
	}
	rec := Record{
		Continent:      strings.TrimSpace(row[cols[0]]),
		Country:        strings.TrimSpace(row[cols[1]]),
		RawCountryCode: strings.TrimSpace(row[cols[2]]),
	}
	if rec.Country == "" {
		return Record{}, errors.New("empty country")
	}
	rec.Prefix = normalizePrefix(rec.RawCountryCode)
	if rec.Prefix == "" {
		return Record{}, fmt.Errorf("no digits in country code %q", rec.RawCountryCode)
	}
	min, max, err := parsePrice(row[cols[3]])
	if err != nil {
		return Record{}, err
	}
	rec.MinRate, rec.MaxRate = min, max
	return rec, nil
}

// ReadFile loads a rate sheet from disk.
func ReadFile(path string, log *slog.Logger) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rates: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f, log)
}

// LoadFile is ReadFile that degrades to an empty table, so callers fall back to the default rate.
func LoadFile(path string, log *slog.Logger) *Table {
	if log == nil {
		log = slog.Default()
	}
	t, err := ReadFile(path, log)
	if err != nil {
		log.Error("rate table unavailable, every lookup will use the default rate", "path", path, "err", err)
		return NewTable(nil)
	}
	log.Info("rate table loaded", "path", path, "records", t.Len(), "version", t.Version())
	return t
}

func (t *Table) Len() int { return len(t.records) }

// Version identifies the table contents; equal tables share a version.
func (t *Table) Version() string { return t.version }

func (t *Table) All() []Record {
	return append([]Record(nil), t.records...)
}

// Continents lists continent names in first-seen order.
func (t *Table) Continents() []string {
	return append([]string(nil), t.continents...)
}

func (t *Table) ByContinent() map[string][]Record {
	out := make(map[string][]Record, len(t.byContinent))
	for k, v := range t.byContinent {
		out[k] = append([]Record(nil), v...)
	}
	return out
}

// Search does a case-insensitive substring match on country name or raw code.
// A blank term returns every record.
func (t *Table) Search(term string) []Record {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return t.All()
	}
	var out []Record
	for _, r := range t.records {
		if strings.Contains(strings.ToLower(r.Country), term) ||
			strings.Contains(strings.ToLower(r.RawCountryCode), term) {
			out = append(out, r)
		}
	}
	return out
}

// Country returns the first record with exactly this country name.
func (t *Table) Country(name string) (Record, bool) {
	i, ok := t.byCountry[name]
	if !ok {
		return Record{}, false
	}
	return t.records[i], true
}
