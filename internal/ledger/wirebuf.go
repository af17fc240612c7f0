package ledger

import (
	"encoding/binary"
	"fmt"

	"cashew/internal/crypto"
)

// wireWriter is a tiny little-endian binary encoder shared by every payload
// type in this package, matching the field layout conventions of spec §6.1.
type wireWriter struct {
	buf []byte
}

func (w *wireWriter) byte(b uint8)   { w.buf = append(w.buf, b) }
func (w *wireWriter) hash(h crypto.Hash) { w.buf = append(w.buf, h[:]...) }
func (w *wireWriter) bytesFixed(b []byte) { w.buf = append(w.buf, b...) }

func (w *wireWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *wireWriter) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *wireWriter) i32(v int32) { w.u32(uint32(v)) }

func (w *wireWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *wireWriter) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *wireWriter) bytesOut() []byte { return w.buf }

type wireReader struct {
	buf []byte
	off int
}

func newWireReader(b []byte) *wireReader { return &wireReader{buf: b} }

func (r *wireReader) need(n int) error {
	if r.off+n > len(r.buf) {
		return fmt.Errorf("ledger: payload truncated (need %d more bytes at offset %d, have %d)", n, r.off, len(r.buf))
	}
	return nil
}

func (r *wireReader) byte() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *wireReader) hash() (crypto.Hash, error) {
	var h crypto.Hash
	if err := r.need(32); err != nil {
		return h, err
	}
	copy(h[:], r.buf[r.off:r.off+32])
	r.off += 32
	return h, nil
}

func (r *wireReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off : r.off+4])
	r.off += 4
	return v, nil
}

func (r *wireReader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off : r.off+8])
	r.off += 8
	return v, nil
}

func (r *wireReader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

func (r *wireReader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

func (r *wireReader) bytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := append([]byte(nil), r.buf[r.off:r.off+int(n)]...)
	r.off += int(n)
	return b, nil
}

func (r *wireReader) done() bool { return r.off == len(r.buf) }
