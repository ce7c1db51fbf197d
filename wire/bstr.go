package wire

import (
	"sync"

	"golang.org/x/text/encoding/unicode"
)

const (
	// Pool limits to prevent memory bloat
	bstrPoolMaxCap  = 4096
	bstrPoolInitCap = 64
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// BSTR is the wire form of a string: UTF-16LE code units in a pooled buffer.
// A nil *BSTR is the null string.
type BSTR struct {
	data []byte
}

var bstrPool = sync.Pool{
	New: func() any {
		return &BSTR{data: make([]byte, 0, bstrPoolInitCap)}
	},
}

// NewBSTR encodes s into a pooled buffer. The caller must Free it.
func NewBSTR(s string) (*BSTR, error) {
	b := bstrPool.Get().(*BSTR)
	// UTF-8 never needs more than two bytes of UTF-16 per byte
	need := len(s) * 2
	if cap(b.data) < need {
		b.data = make([]byte, need)
	}
	b.data = b.data[:need]

	n, _, err := utf16le.NewEncoder().Transform(b.data, []byte(s), true)
	if err != nil {
		b.Free()
		return nil, err
	}
	b.data = b.data[:n]
	return b, nil
}

// Len returns the number of UTF-16 code units.
func (b *BSTR) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data) / 2
}

// Bytes returns the UTF-16LE payload. The slice is only valid until Free.
func (b *BSTR) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// String decodes the payload.
func (b *BSTR) String() string {
	if b == nil || len(b.data) == 0 {
		return ""
	}
	out, err := utf16le.NewDecoder().Bytes(b.data)
	if err != nil {
		return ""
	}
	return string(out)
}

// Free returns the buffer to the pool. b must not be used afterwards.
func (b *BSTR) Free() {
	if b == nil || cap(b.data) > bstrPoolMaxCap {
		return // reject oversized
	}
	b.data = b.data[:0]
	bstrPool.Put(b)
}
