package validate

import (
	"fmt"
	"regexp"

	"github.com/redhatci/kaijs/internal/types"
)

// NonCIShape is a declarative object-shape check for one non-CI topic
// pattern, matching spec §4.4 point 3's "registry of Joi-like declarative
// shapes".
type NonCIShape struct {
	TopicPattern *regexp.Regexp
	Required     []string
}

// NonCIRegistry matches non-CI topics (those without ".ci." in the name)
// against a registry of required-field shapes.
type NonCIRegistry struct {
	shapes []NonCIShape
}

// NewNonCIRegistry creates an empty registry. Register shapes with Add, in
// most-specific-first order (same convention as internal/dispatch).
func NewNonCIRegistry() *NonCIRegistry {
	return &NonCIRegistry{}
}

// Add registers a shape.
func (r *NonCIRegistry) Add(pattern string, required ...string) *NonCIRegistry {
	r.shapes = append(r.shapes, NonCIShape{TopicPattern: regexp.MustCompile(pattern), Required: required})
	return r
}

// Validate finds the first shape whose pattern matches topic and checks
// body has every required field.
func (r *NonCIRegistry) Validate(topic string, body map[string]any) error {
	for _, shape := range r.shapes {
		if !shape.TopicPattern.MatchString(topic) {
			continue
		}
		for _, field := range shape.Required {
			if _, ok := body[field]; !ok {
				return &types.ValidationError{Topic: topic, Detail: fmt.Sprintf("missing %q", field)}
			}
		}
		return nil
	}
	return &types.NoValidationSchemaError{Topic: topic, Detail: "no declarative shape registered for this topic"}
}

// DefaultNonCIRegistry returns the registry for the non-CI topic families
// named in spec §4.5: buildsys.tag and errata-tool automation finished.
func DefaultNonCIRegistry() *NonCIRegistry {
	return NewNonCIRegistry().
		Add(`buildsys\.tag$`, "build_id", "tag", "name").
		Add(`errata_automation\.brew-build\.run\.finished$`)
}
