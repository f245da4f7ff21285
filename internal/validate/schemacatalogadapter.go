package validate

import "context"

// CompilerAdapter adapts a *schemacatalog.CompilerCache (whose CompilePath
// returns a concrete *jsonschema.Schema) to the Validator's SchemaCompiler
// interface, so internal/validate never imports santhosh-tekuri/jsonschema
// directly. Wiring code (cmd/loader) sets Compile to catalog.CompilePath;
// *jsonschema.Schema already satisfies the Schema interface's Validate
// method, so no further conversion is needed at the call site.
type CompilerAdapter struct {
	Compile func(ctx context.Context, tag, path string) (Schema, error)
}

// CompilePath satisfies SchemaCompiler.
func (a *CompilerAdapter) CompilePath(ctx context.Context, tag, path string) (Schema, error) {
	return a.Compile(ctx, tag, path)
}
