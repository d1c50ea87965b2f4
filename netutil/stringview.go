package netutil

// StringView is a non-owning view over a byte slice, mirroring
// muduo's StringPiece: it never copies the underlying bytes, so the
// caller must ensure the backing array outlives the view.
type StringView struct {
	data []byte
}

// NewStringView wraps b without copying it.
func NewStringView(b []byte) StringView {
	return StringView{data: b}
}

// NewStringViewFromString wraps a copy of s's bytes: converting a
// string to []byte copies it once, and the view does not copy again.
func NewStringViewFromString(s string) StringView {
	return StringView{data: []byte(s)}
}

// Len returns the number of bytes in the view.
func (v StringView) Len() int { return len(v.data) }

// Empty reports whether the view has zero length.
func (v StringView) Empty() bool { return len(v.data) == 0 }

// Bytes returns the underlying slice, still owned by the original buffer.
func (v StringView) Bytes() []byte { return v.data }

// String copies the view's contents into a new Go string.
func (v StringView) String() string { return string(v.data) }

// At returns the byte at index i.
func (v StringView) At(i int) byte { return v.data[i] }

// SubView returns the sub-view [from:to), still non-owning.
func (v StringView) SubView(from, to int) StringView {
	return StringView{data: v.data[from:to]}
}
