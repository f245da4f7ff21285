// Package validate implements the two-path validator of spec §4.4: strict
// draft-07 JSON Schema for versions ≥ 1.0, relaxed declarative shape
// checking for versions < 1.0, plus the envelope shape check every message
// passes through first.
package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/redhatci/kaijs/internal/types"
)

// SchemaCompiler is the subset of schemacatalog.CompilerCache the validator
// needs, narrowed to an interface so tests don't need a real git mirror.
type SchemaCompiler interface {
	CompilePath(ctx context.Context, tag, path string) (Schema, error)
}

// Schema is the subset of *jsonschema.Schema the validator calls.
type Schema interface {
	Validate(v any) error
}

// Validator runs the envelope-shape check followed by the strict/relaxed
// schema path selection of spec §4.4.
type Validator struct {
	compiler SchemaCompiler
	nonCI    *NonCIRegistry
}

// New creates a Validator backed by compiler for the strict path and
// nonCI for declarative non-CI topic shapes.
func New(compiler SchemaCompiler, nonCI *NonCIRegistry) *Validator {
	return &Validator{compiler: compiler, nonCI: nonCI}
}

// Validate runs the full procedure of spec §4.4 against env.
func (v *Validator) Validate(ctx context.Context, env *types.SpoolMessage) error {
	if err := CheckEnvelopeShape(env); err != nil {
		return err
	}

	if !strings.Contains(env.BrokerTopic, ".ci.") {
		if v.nonCI == nil {
			return &types.NoValidationSchemaError{Topic: env.BrokerTopic}
		}
		return v.nonCI.Validate(env.BrokerTopic, env.Body)
	}

	version, _ := env.Body["version"].(string)
	if version == "" {
		return &types.WrongVersionError{Topic: env.BrokerTopic, Detail: "missing 'version'"}
	}

	if strings.HasPrefix(version, "0.") {
		return ValidateRelaxed(env.Body)
	}
	return v.validateStrict(ctx, env, version)
}

// validateStrict maps broker_topic's last three dot-segments to
// "<x>.<y>.<z>.json" under schemas/ at tag == version (spec §4.4 point 2).
func (v *Validator) validateStrict(ctx context.Context, env *types.SpoolMessage, version string) error {
	path, err := strictSchemaPath(env.BrokerTopic)
	if err != nil {
		return &types.NoValidationSchemaError{Topic: env.BrokerTopic, Detail: err.Error()}
	}

	sch, err := v.compiler.CompilePath(ctx, version, path)
	if err != nil {
		return &types.NoValidationSchemaError{Topic: env.BrokerTopic, Version: version, Detail: err.Error()}
	}

	if err := sch.Validate(env.Body); err != nil {
		return &types.ValidationError{Topic: env.BrokerTopic, Version: version, Detail: err.Error(), Err: err}
	}
	return nil
}

// strictSchemaPath derives "schemas/<x>.<y>.<z>.json" from the last three
// dot-segments of topic.
func strictSchemaPath(topic string) (string, error) {
	segs := strings.Split(topic, ".")
	if len(segs) < 3 {
		return "", fmt.Errorf("topic %q has fewer than 3 dot-segments", topic)
	}
	last3 := segs[len(segs)-3:]
	return "schemas/" + strings.Join(last3, ".") + ".json", nil
}

// CheckEnvelopeShape verifies the fields of spec §3.1 are present and
// typed correctly.
func CheckEnvelopeShape(env *types.SpoolMessage) error {
	if env == nil {
		return &types.ValidationError{Detail: "nil envelope"}
	}
	if env.SpoolID == "" {
		return &types.ValidationError{Detail: "missing spool_id"}
	}
	if env.BrokerMsgID == "" {
		return &types.ValidationError{Detail: "missing broker_msg_id"}
	}
	if env.BrokerTopic == "" {
		return &types.ValidationError{Detail: "missing broker_topic"}
	}
	if env.ProviderName == "" {
		return &types.ValidationError{Detail: "missing provider_name"}
	}
	if env.ProviderTS == 0 {
		return &types.ValidationError{Detail: "missing provider_ts"}
	}
	if env.Body == nil {
		return &types.ValidationError{Topic: env.BrokerTopic, Detail: "missing body"}
	}
	return nil
}
