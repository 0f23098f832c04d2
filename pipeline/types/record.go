package types

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/routeflow/routeflow/pkg/logger"
)

var assertionsEnabledValue bool = false

func init() {
	if os.Getenv("ENABLE_ASSERTIONS") == "true" {
		assertionsEnabledValue = true
	}
}

// Record is a single unit of event data flowing through the pipeline.
// Field values are one of: string, float64, int64, bool, time.Time,
// map[string]any, or nil.
// It is not safe for concurrent updates.
// It is safe to read from multiple goroutines after all modifications have been completed.
// Freeze is best effort and should be used to indicate that the record is no longer being modified.
type Record struct {
	// ingestTime is when the source adapter observed this record, in nanoseconds since the unix epoch
	ingestTime uint64

	// fields of the record, addressed by name only
	fields map[string]any

	// frozen tracks if this object should not be modified
	// updated atomically
	frozen uint32
}

func NewRecord() *Record {
	return &Record{
		fields: map[string]any{},
		frozen: 0,
	}
}

func (r *Record) Reset() {
	r.ingestTime = 0
	clear(r.fields)
	atomic.StoreUint32(&r.frozen, 0)
}

// Copy returns a distinct copy of the record. This is useful for fanning a
// record out to multiple pipeline edges.
func (r *Record) Copy() *Record {
	copy := RecordPool.Get(1).(*Record)
	copy.Reset()
	copy.ingestTime = r.ingestTime
	for k, v := range r.fields {
		copy.fields[k] = v
	}
	return copy
}

func (r *Record) SetIngestTime(ts time.Time) {
	r.checkWrite()
	r.ingestTime = uint64(ts.UnixNano())
}

func (r *Record) IngestTime() time.Time {
	return time.Unix(0, int64(r.ingestTime))
}

func (r *Record) Set(field string, value any) {
	r.checkWrite()
	r.fields[field] = value
}

func (r *Record) Get(field string) (any, bool) {
	v, ok := r.fields[field]
	return v, ok
}

func (r *Record) Delete(field string) {
	r.checkWrite()
	delete(r.fields, field)
}

func (r *Record) ForEach(f func(string, any) error) error {
	for k, v := range r.fields {
		if err := f(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (r *Record) Len() int {
	return len(r.fields)
}

// Fields returns a copy of the field map for read-only access.
// This creates a shallow copy of the map elements. The map is safe to modify, but most elements are not.
func (r *Record) Fields() map[string]any {
	result := make(map[string]any, len(r.fields))
	for k, v := range r.fields {
		result[k] = v
	}
	return result
}

func (r *Record) Freeze() {
	atomic.StoreUint32(&r.frozen, 1)
}

func (r *Record) checkWrite() {
	if atomic.LoadUint32(&r.frozen) == 1 {
		if assertionsEnabledValue {
			panic("write to frozen record - not safe for updates")
		} else {
			var pcs [1]uintptr
			n := runtime.Callers(3, pcs[:]) // Skip 3 frames to get to the caller of the write method
			frames := runtime.CallersFrames(pcs[:n])
			frame, _ := frames.Next()
			logger.Errorf("write to frozen record - not safe for updates caller=%s",
				fmt.Sprintf("%s:%d", frame.Function, frame.Line))
		}
	}
}
