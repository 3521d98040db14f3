package sqlstore

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/five82/captable/internal/service"
)

// seedFile is the YAML layout accepted by Seed:
//
//	rows:
//	  - title: Alien
//	    year: 1979
type seedFile struct {
	Rows []map[string]any `yaml:"rows"`
}

// Seed inserts the rows of a YAML document and returns how many were
// created.
func (s *Store) Seed(ctx context.Context, r io.Reader) (int, error) {
	var doc seedFile
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("decode seed: %w", err)
	}
	if len(doc.Rows) == 0 {
		return 0, nil
	}
	data := make([]service.BeanData, len(doc.Rows))
	for i, row := range doc.Rows {
		data[i] = service.BeanData{ClientID: fmt.Sprintf("seed-%d", i), Values: row}
	}
	created, err := s.Create(ctx, nil, data)
	if err != nil {
		return 0, fmt.Errorf("seed %s: %w", s.opts.Table, err)
	}
	return len(created), nil
}

// SeedFile seeds from path when the table is still empty.
func (s *Store) SeedFile(ctx context.Context, path string) (int, error) {
	n, err := s.Count(ctx, service.CountQuery{})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return s.Seed(ctx, f)
}
