package plan

import (
	"bytes"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseCatalog decodes a YAML catalog description and builds a Catalog from it.
//
//	default_plan: free
//	features:
//	  - id: projects
//	    period: lifetime
//	plans:
//	  - id: free
//	    interval: none
//	    entitlements:
//	      projects: 5
//	      api_calls: unlimited
func ParseCatalog(r io.Reader) (Catalog, error) {
	var cfg CatalogConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}
	return NewCatalog(cfg)
}

// LoadCatalogFile reads and parses a YAML catalog from disk.
func LoadCatalogFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}
	return ParseCatalog(bytes.NewReader(data))
}
