package dataflow

import (
	"bufio"
	"embed"
	"encoding/json"
	"path"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

//go:embed fixtures/*.ndjson
var fixtureFS embed.FS

// FixtureStore serves the named read-only reference datasets source nodes
// can point at. Datasets are shipped as ndjson inside the binary and
// loaded at most once per process; they are shared read-only across runs.
type FixtureStore struct {
	once    sync.Once
	rows    map[string][]map[string]any
	schemas map[string]Schema
}

func NewFixtureStore() *FixtureStore {
	return &FixtureStore{}
}

// Rows returns the dataset's records, or false for an unknown name.
func (s *FixtureStore) Rows(name string) ([]map[string]any, bool) {
	s.once.Do(s.load)
	rows, ok := s.rows[name]
	return rows, ok
}

// Schema returns the dataset's column/type map, computed once over every
// row so columns missing from early records are still captured.
func (s *FixtureStore) Schema(name string) (Schema, bool) {
	s.once.Do(s.load)
	schema, ok := s.schemas[name]
	return schema, ok
}

// Names lists the available datasets.
func (s *FixtureStore) Names() []string {
	s.once.Do(s.load)
	names := make([]string, 0, len(s.rows))
	for name := range s.rows {
		names = append(names, name)
	}
	return names
}

func (s *FixtureStore) load() {
	s.rows = map[string][]map[string]any{}
	s.schemas = map[string]Schema{}

	entries, err := fixtureFS.ReadDir("fixtures")
	if err != nil {
		log.Error().Err(err).Msg("Failed to read embedded fixture datasets")
		return
	}

	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".ndjson")

		file, err := fixtureFS.Open(path.Join("fixtures", entry.Name()))
		if err != nil {
			log.Error().Err(err).Str("dataset", name).Msg("Failed to open fixture dataset")
			continue
		}

		var rows []map[string]any
		schema := Schema{}
		nilSeeded := map[string]bool{}

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var record map[string]any
			if err := json.Unmarshal([]byte(line), &record); err != nil {
				log.Warn().Err(err).Str("dataset", name).Msg("Skipping malformed fixture row")
				continue
			}
			rows = append(rows, record)
			for key, value := range FlattenRecord(record) {
				if _, ok := schema[key]; !ok {
					schema[key] = InferType(value)
					nilSeeded[key] = value == nil
				} else if nilSeeded[key] && value != nil {
					schema[key] = InferType(value)
					nilSeeded[key] = false
				}
			}
		}
		file.Close()

		s.rows[name] = rows
		s.schemas[name] = schema
		log.Debug().Str("dataset", name).Int("rows", len(rows)).Msg("Loaded fixture dataset")
	}
}
