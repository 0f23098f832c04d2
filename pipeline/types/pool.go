package types

import (
	"github.com/routeflow/routeflow/pkg/pool"
)

var (
	RecordBatchPool = pool.NewGeneric(200, func(sz int) interface{} {
		return &RecordBatch{
			Records: make([]*Record, 0, sz),
		}
	})
	RecordPool = pool.NewGeneric(1024, func(sz int) interface{} {
		return NewRecord()
	})
)
