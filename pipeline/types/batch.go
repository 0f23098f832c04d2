package types

// RecordBatch is a group of records travelling one pipeline edge together.
type RecordBatch struct {
	Records []*Record
	Ack     func()
}

// Copy returns a batch with distinct copies of every record. Used when a
// source fans out to more than one edge.
func (b *RecordBatch) Copy() *RecordBatch {
	copy := RecordBatchPool.Get(len(b.Records)).(*RecordBatch)
	copy.Reset()
	for _, r := range b.Records {
		copy.Records = append(copy.Records, r.Copy())
	}
	return copy
}

func (b *RecordBatch) Reset() {
	for i := range b.Records {
		b.Records[i] = nil
	}
	b.Records = b.Records[:0]
	b.Ack = noop
}

func noop() {}
