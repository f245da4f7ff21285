package schemacatalog

import (
	"context"
	"fmt"
	"strings"
)

// fileGetter is satisfied by both *Catalog and *CachedCatalog, letting
// tagLoader work whether or not a redis tag cache sits in front of the git
// mirror.
type fileGetter interface {
	GetFile(ctx context.Context, tag, path string) ([]byte, error)
}

// tagLoader implements jsonschema.URLLoader, resolving "catalog:///<path>"
// references against a fixed catalog tag. $ref targets inside a schema
// document are ordinary sibling paths under the same tag, so every load
// within one CompilePath call reuses the same tagLoader and tag.
type tagLoader struct {
	ctx     context.Context
	catalog fileGetter
	tag     string
}

// Load fetches url (a "catalog:///<path>" reference) from the catalog at
// l.tag and parses it as YAML.
func (l *tagLoader) Load(url string) (any, error) {
	path := strings.TrimPrefix(url, "catalog:///")
	raw, err := l.catalog.GetFile(l.ctx, l.tag, path)
	if err != nil {
		return nil, fmt.Errorf("schemacatalog: load %s@%s: %w", path, l.tag, err)
	}
	return yamlToJSON(raw)
}
