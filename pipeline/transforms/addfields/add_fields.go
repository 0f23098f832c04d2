// Package addfields implements a transform that stamps static fields onto
// every record.
package addfields

import (
	"context"
	"fmt"

	"github.com/routeflow/routeflow/pipeline/types"
)

type Transform struct {
	name   string
	fields map[string]string
}

func NewTransform(name string, fields map[string]string) (*Transform, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("transform %s: fields is required", name)
	}
	return &Transform{name: name, fields: fields}, nil
}

func (t *Transform) Open(ctx context.Context) error {
	return nil
}

func (t *Transform) Transform(ctx context.Context, batch *types.RecordBatch) (*types.RecordBatch, error) {
	for _, r := range batch.Records {
		for key, value := range t.fields {
			r.Set(key, value)
		}
	}
	return batch, nil
}

func (t *Transform) Close() error {
	return nil
}

func (t *Transform) Name() string {
	return t.name
}
