package filestore

// MemReader is a []byte-backed Reader, used to drive the sender against a
// fixed in-memory file in tests.
type MemReader struct {
	data []byte
}

// NewMemReader wraps data as a Reader.
func NewMemReader(data []byte) *MemReader {
	return &MemReader{data: data}
}

// ReadAt returns up to n bytes of data starting at offset, or fewer
// (possibly zero) at EOF.
func (m *MemReader) ReadAt(offset int64, n int) ([]byte, error) {
	if offset >= int64(len(m.data)) {
		return nil, nil
	}
	end := offset + int64(n)
	if end > int64(len(m.data)) {
		end = int64(len(m.data))
	}
	return m.data[offset:end], nil
}

// MemWriter is a []byte-backed Writer, used to capture the receiver's
// output in tests and assert it against the original input.
type MemWriter struct {
	data []byte
}

// NewMemWriter returns an empty MemWriter.
func NewMemWriter() *MemWriter {
	return &MemWriter{}
}

// Append adds b to the end of the captured data.
func (m *MemWriter) Append(b []byte) error {
	m.data = append(m.data, b...)
	return nil
}

// Bytes returns everything appended so far.
func (m *MemWriter) Bytes() []byte {
	return m.data
}
