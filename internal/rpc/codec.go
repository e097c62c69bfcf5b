package rpc

import (
	"encoding/binary"
	"strconv"
	"unicode/utf8"
)

// Encoder appends big-endian fields to a growing buffer. Struct
// payloads are encoded as their fields in declaration order; sequences
// and strings carry a u32 length prefix.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an encoder with the given initial capacity.
func NewEncoder(capacity int) *Encoder {
	return &Encoder{buf: make([]byte, 0, capacity)}
}

// Bytes returns the encoded buffer.
func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) U8(v uint8) { e.buf = append(e.buf, v) }

func (e *Encoder) U32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) U64(v uint64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, v)
}

func (e *Encoder) Bool(v bool) {
	if v {
		e.U8(1)
	} else {
		e.U8(0)
	}
}

// Blob writes a length-prefixed byte field.
func (e *Encoder) Blob(b []byte) {
	e.U32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// Str writes a length-prefixed string field.
func (e *Encoder) Str(s string) {
	e.U32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// Seq writes a sequence count; the caller encodes the elements.
func (e *Encoder) Seq(n int) { e.U32(uint32(n)) }

// Decoder is an offset cursor over an encoded payload. Byte fields are
// returned as sub-slices of the input buffer; they are invalid once the
// backing buffer is reused.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder returns a decoder positioned at the start of buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining reports the bytes left after the cursor.
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

// Offset reports how many bytes have been consumed.
func (d *Decoder) Offset() int { return d.off }

func (d *Decoder) need(n int) error {
	if d.Remaining() < n {
		return serdef("need %d bytes at offset %d, have %d", n, d.off, d.Remaining())
	}
	return nil
}

func (d *Decoder) U8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.buf[d.off]
	d.off++
	return v, nil
}

func (d *Decoder) U32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *Decoder) U64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, nil
}

func (d *Decoder) Bool() (bool, error) {
	v, err := d.U8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// Blob reads a length-prefixed byte field without copying.
func (d *Decoder) Blob() ([]byte, error) {
	n, err := d.U32()
	if err != nil {
		return nil, err
	}
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	b := d.buf[d.off : d.off+int(n) : d.off+int(n)]
	d.off += int(n)
	return b, nil
}

// Str reads a length-prefixed string field and validates UTF-8.
func (d *Decoder) Str() (string, error) {
	start := d.off
	b, err := d.Blob()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", utf8Err("string field at offset " + strconv.Itoa(start))
	}
	return string(b), nil
}

// Seq reads a sequence count. The count is bounded by the remaining
// buffer length so a forged count cannot drive a large allocation.
func (d *Decoder) Seq() (int, error) {
	n, err := d.U32()
	if err != nil {
		return 0, err
	}
	if int(n) > d.Remaining() {
		return 0, serdef("sequence of %d elements exceeds %d remaining bytes", n, d.Remaining())
	}
	return int(n), nil
}
