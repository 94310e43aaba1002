package settings

import (
	"encoding/json"
	"fmt"
	"os"
)

type prefixDocument struct {
	DeletePrefixes []string `json:"deletePrefixes"`
}

// DeletePrefixes reads the bundle strip list on every call.
type DeletePrefixes struct {
	path string
}

// NewDeletePrefixes creates a reader for path.
func NewDeletePrefixes(path string) *DeletePrefixes {
	return &DeletePrefixes{path: path}
}

// Load returns the configured prefixes. A missing file means none.
func (d *DeletePrefixes) Load() ([]string, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read delete prefixes: %w", err)
	}

	var doc prefixDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse delete prefixes: %w", err)
	}
	return doc.DeletePrefixes, nil
}

// Save replaces the prefix list.
func (d *DeletePrefixes) Save(prefixes []string) error {
	if prefixes == nil {
		prefixes = []string{}
	}
	return writeJSON(d.path, prefixDocument{DeletePrefixes: prefixes})
}
