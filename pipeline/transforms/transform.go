package transforms

import (
	"fmt"

	"github.com/routeflow/routeflow/pipeline/transforms/addfields"
	"github.com/routeflow/routeflow/pipeline/transforms/remap"
	"github.com/routeflow/routeflow/pipeline/types"
)

// Settings carries the type-specific options of a transform node.  Only the
// options for the node's declared type are consulted.
type Settings struct {
	// Steps is the remap program.
	Steps []remap.Step

	// Fields are the static values stamped by add_fields.
	Fields map[string]string
}

// TransformCreator builds a transformer instance for one pipeline edge.
// source names the edge's origin for diagnostics.
type TransformCreator func(name, source string, settings Settings) (types.Transformer, error)

const (
	TransformTypeRemap     = "remap"
	TransformTypeAddFields = "add_fields"
)

var transformCreators = map[string]TransformCreator{
	TransformTypeRemap: func(name, source string, settings Settings) (types.Transformer, error) {
		return remap.NewTransform(name, source, settings.Steps)
	},
	TransformTypeAddFields: func(name, source string, settings Settings) (types.Transformer, error) {
		return addfields.NewTransform(name, settings.Fields)
	},
}

func IsValidTransformType(transformType string) bool {
	_, ok := transformCreators[transformType]
	return ok
}

func NewTransform(transformType, name, source string, settings Settings) (types.Transformer, error) {
	creator, ok := transformCreators[transformType]
	if !ok {
		return nil, fmt.Errorf("unknown transform type: %s", transformType)
	}

	return creator(name, source, settings)
}
