package schemacatalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// CompiledSet is a set of compiled draft-07 schemas for one version tag,
// keyed by schema path ("schemas/<x>.<y>.<z>.json" per spec §4.4).
type CompiledSet struct {
	schemas map[string]*jsonschema.Schema
}

// Get returns the compiled schema for path, if present.
func (s *CompiledSet) Get(path string) (*jsonschema.Schema, bool) {
	sch, ok := s.schemas[path]
	return sch, ok
}

// CompilerCache memoizes a CompiledSet per version tag so repeated messages
// at the same schema version never recompile (spec §4.3: "memoized per-tag
// schema compiler cache").
type CompilerCache struct {
	catalog fileGetter

	mu    sync.Mutex
	cache map[string]*CompiledSet
}

// NewCompilerCache creates a cache backed by catalog (a *Catalog or a
// *CachedCatalog when a redis tag cache is configured).
func NewCompilerCache(catalog fileGetter) *CompilerCache {
	return &CompilerCache{catalog: catalog, cache: make(map[string]*CompiledSet)}
}

// CompilePath compiles (or returns the cached compilation of) the schema at
// the given path for tag, registering it with the compiler's $ref
// resolution so sibling schemas are fetched lazily through the catalog.
func (c *CompilerCache) CompilePath(ctx context.Context, tag, path string) (*jsonschema.Schema, error) {
	c.mu.Lock()
	set, ok := c.cache[tag]
	if !ok {
		set = &CompiledSet{schemas: make(map[string]*jsonschema.Schema)}
		c.cache[tag] = set
	}
	if sch, ok := set.Get(path); ok {
		c.mu.Unlock()
		return sch, nil
	}
	c.mu.Unlock()

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)
	compiler.UseLoader(&tagLoader{ctx: ctx, catalog: c.catalog, tag: tag})

	sch, err := compiler.Compile(schemeURL(path))
	if err != nil {
		return nil, fmt.Errorf("schemacatalog: compile %s@%s: %w", path, tag, err)
	}

	c.mu.Lock()
	set.schemas[path] = sch
	c.mu.Unlock()
	return sch, nil
}

func schemeURL(path string) string {
	return "catalog:///" + path
}

// yamlToJSON converts a YAML schema document to its JSON-compatible form
// (map[string]any with string keys), since jsonschema.Compile expects
// json.Unmarshal-shaped data.
func yamlToJSON(raw []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("schemacatalog: parse yaml: %w", err)
	}
	return normalizeYAML(v), nil
}

// normalizeYAML recursively converts map[string]any (already produced by
// yaml.v3 for mapping nodes) and leaves scalars as-is; yaml.v3 decodes YAML
// mappings into map[string]any directly, unlike gopkg.in/yaml.v2's
// map[interface{}]interface{}, so no key-type conversion is needed here.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case []any:
		for i, e := range val {
			val[i] = normalizeYAML(e)
		}
		return val
	case map[string]any:
		for k, e := range val {
			val[k] = normalizeYAML(e)
		}
		return val
	default:
		return val
	}
}
