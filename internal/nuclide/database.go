// Package nuclide parses the fixed-column nuclide database and completes
// source inventories with their significant daughter nuclides.
package nuclide

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"shieldcore/pkg/domain"
)

// Column layout of a database row.
const (
	minRowLength    = 150
	daughterStart   = 47
	daughterWidth   = 25
	daughtersPerRow = 3
)

// SecondsPerYear uses the Julian year.
const SecondsPerYear = 365.25 * 24 * 3600

var halfLifeUnits = map[byte]float64{
	's': 1,
	'm': 60,
	'h': 3600,
	'd': 24 * 3600,
	'y': SecondsPerYear,
}

// Daughter is one decay branch of a nuclide.
type Daughter struct {
	Name           string  `json:"name" yaml:"name"`
	StabilityIndex int     `json:"stability_index" yaml:"stability_index"`
	BranchingRatio float64 `json:"branching_ratio" yaml:"branching_ratio"`
}

// Record is one nuclide of the database. HalfLife is in seconds and is +Inf
// for stable nuclides.
type Record struct {
	Name      string     `json:"name" yaml:"name"`
	HalfLife  float64    `json:"half_life" yaml:"half_life"`
	DecayMode string     `json:"decay_mode" yaml:"decay_mode"`
	Daughters []Daughter `json:"daughters" yaml:"daughters"`
}

// Catalog is the parsed, read-only database keyed by normalized name.
type Catalog struct {
	records map[string]Record
}

// NormalizeName strips separators and upper-cases a nuclide name so that
// "Cs-137", "cs_137" and "Cs137" compare equal.
func NormalizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '-', '_', ' ', '\t', '.':
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// Parse reads a database. Rows shorter than the fixed layout and comment rows
// starting with '#' are skipped.
func Parse(r io.Reader) (*Catalog, error) {
	c := &Catalog{records: make(map[string]Record)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		row := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(row, "#") || len(row) < minRowLength {
			continue
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		c.records[NormalizeName(rec.Name)] = rec
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseRow(row string) (Record, error) {
	rec := Record{
		Name:      strings.TrimSpace(row[0:7]),
		DecayMode: strings.TrimSpace(row[15:25]),
	}
	if rec.Name == "" {
		return Record{}, fmt.Errorf("empty nuclide name")
	}
	hl, err := ParseHalfLife(row[7:15])
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", rec.Name, err)
	}
	rec.HalfLife = hl
	for i := 0; i < daughtersPerRow; i++ {
		start := daughterStart + i*daughterWidth
		if start >= len(row) {
			break
		}
		end := min(start+daughterWidth, len(row))
		fields := strings.Fields(row[start:end])
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 3 {
			return Record{}, fmt.Errorf("%s: daughter block %d: expected name, index and ratio, got %q", rec.Name, i+1, strings.TrimSpace(row[start:end]))
		}
		index, err := strconv.Atoi(fields[1])
		if err != nil {
			return Record{}, fmt.Errorf("%s: daughter block %d index: %w", rec.Name, i+1, err)
		}
		ratio, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return Record{}, fmt.Errorf("%s: daughter block %d ratio: %w", rec.Name, i+1, err)
		}
		rec.Daughters = append(rec.Daughters, Daughter{Name: fields[0], StabilityIndex: index, BranchingRatio: ratio})
	}
	return rec, nil
}

// ParseHalfLife reads a half-life field: a number with an optional unit
// suffix (s, m, h, d, y; seconds when absent). "stable", "-" and an empty
// field mean the nuclide does not decay.
func ParseHalfLife(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "", "-", "stable", "inf":
		return math.Inf(1), nil
	}
	factor := 1.0
	if f, ok := halfLifeUnits[s[len(s)-1]]; ok {
		factor = f
		s = strings.TrimSpace(s[:len(s)-1])
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid half-life %q", strings.TrimSpace(raw))
	}
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("half-life must be positive, got %q", strings.TrimSpace(raw))
	}
	return v * factor, nil
}

// Lookup returns the record for a nuclide name in any spelling.
func (c *Catalog) Lookup(name string) (Record, bool) {
	if c == nil {
		return Record{}, false
	}
	rec, ok := c.records[NormalizeName(name)]
	return rec, ok
}

// Len returns the number of records.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.records)
}

type cacheEntry struct {
	catalog *Catalog
	err     error
}

var (
	cacheMu sync.Mutex
	cache   = map[string]cacheEntry{}
)

// Load parses the database at path once per process. Later calls for the
// same path return the cached catalog or the cached failure.
func Load(path string) (*Catalog, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if entry, ok := cache[path]; ok {
		return entry.catalog, entry.err
	}
	catalog, err := loadFile(path)
	if err != nil {
		err = domain.DataError(domain.CodeNuclideDatabase, err, "load nuclide database %s", path)
	}
	cache[path] = cacheEntry{catalog: catalog, err: err}
	return catalog, err
}

func loadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// ResetCache drops every cached catalog.
func ResetCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = map[string]cacheEntry{}
}
