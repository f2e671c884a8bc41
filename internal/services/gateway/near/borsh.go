package near

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// borshWriter appends values in Borsh layout: little-endian integers and
// u32 length prefixes for strings and byte vectors.
type borshWriter struct {
	buf []byte
	err error
}

func (w *borshWriter) u8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *borshWriter) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *borshWriter) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *borshWriter) u128(v *big.Int) {
	if w.err != nil {
		return
	}
	if v == nil {
		v = new(big.Int)
	}
	if v.Sign() < 0 || v.BitLen() > 128 {
		w.err = fmt.Errorf("borsh: %s does not fit in u128", v)
		return
	}
	be := v.FillBytes(make([]byte, 16))
	for i := len(be) - 1; i >= 0; i-- {
		w.buf = append(w.buf, be[i])
	}
}

func (w *borshWriter) bytes(v []byte) {
	w.u32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *borshWriter) string(v string) {
	w.bytes([]byte(v))
}

func (w *borshWriter) fixed(v []byte) {
	w.buf = append(w.buf, v...)
}

func (w *borshWriter) result() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

// borshReader consumes values written by borshWriter.
type borshReader struct {
	buf []byte
	err error
}

func (r *borshReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf) < n {
		r.err = fmt.Errorf("borsh: unexpected end of input")
		return nil
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *borshReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *borshReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *borshReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *borshReader) u128() *big.Int {
	b := r.take(16)
	if b == nil {
		return new(big.Int)
	}
	be := make([]byte, 16)
	for i := range b {
		be[15-i] = b[i]
	}
	return new(big.Int).SetBytes(be)
}

func (r *borshReader) bytes() []byte {
	n := r.u32()
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (r *borshReader) string() string {
	return string(r.bytes())
}

func (r *borshReader) fixed(dst []byte) {
	copy(dst, r.take(len(dst)))
}

func (r *borshReader) finish() error {
	if r.err != nil {
		return r.err
	}
	if len(r.buf) != 0 {
		return fmt.Errorf("borsh: %d trailing bytes", len(r.buf))
	}
	return nil
}
