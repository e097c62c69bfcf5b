package rpc

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
)

// Message codes, one byte on the wire ahead of the payload.
const (
	codeOk                 byte = 0x0a
	codeFail               byte = 0x0b
	codeNotify             byte = 0x0c
	codeHello              byte = 0x0d
	codePullMetadata       byte = 0x0e
	codePullMetadataResult byte = 0x0f
	codePushMetadata       byte = 0x10
	codePushMetadataResult byte = 0x11
)

// Message is the closed set of protocol messages. The unexported
// methods seal the set: every variant carries exactly one code and
// both dispatch switches below must cover every variant.
type Message interface {
	code() byte
	encodePayload(e *Encoder)
}

// Ok acknowledges a request that produced no data. It carries no
// fields; the payload is padded to the minimum packet size.
type Ok struct{}

// Fail reports a request failure with a status code and description.
type Fail struct {
	Code    uint32
	Message string
}

// Notify is a server-initiated informational message.
type Notify struct {
	Message string
}

// Hello opens a session: protocol revision, license key, client host.
type Hello struct {
	Protocol   uint32
	LicenseKey []byte
	Hostname   string
}

// PullMetadata requests metadata for a set of function hashes.
type PullMetadata struct {
	Flags  uint32
	Hashes [][]byte
}

// FuncInfo is one known function returned by a pull.
type FuncInfo struct {
	Name       string
	Len        uint32
	Metadata   []byte
	Popularity uint32
}

// PullMetadataResult answers a PullMetadata: one status per requested
// hash (1 hit, 0 miss) and one FuncInfo per hit, in request order.
type PullMetadataResult struct {
	Statuses []uint32
	Funcs    []FuncInfo
}

// FuncEntry is one function uploaded by a push.
type FuncEntry struct {
	Name     string
	Len      uint32
	Hash     []byte
	Metadata []byte
}

// PushMetadata uploads function metadata from a client database.
type PushMetadata struct {
	Flags uint32
	Idb   string
	Funcs []FuncEntry
}

// PushMetadataResult answers a PushMetadata: one status per pushed
// function (1 stored as new or updated, 0 unchanged).
type PushMetadataResult struct {
	Statuses []uint32
}

func (*Ok) code() byte                 { return codeOk }
func (*Fail) code() byte               { return codeFail }
func (*Notify) code() byte             { return codeNotify }
func (*Hello) code() byte              { return codeHello }
func (*PullMetadata) code() byte       { return codePullMetadata }
func (*PullMetadataResult) code() byte { return codePullMetadataResult }
func (*PushMetadata) code() byte       { return codePushMetadata }
func (*PushMetadataResult) code() byte { return codePushMetadataResult }

func (*Ok) encodePayload(e *Encoder) {
	// Pad to the packet payload floor; decoders ignore the padding.
	e.U32(0)
}

func (m *Fail) encodePayload(e *Encoder) {
	e.U32(m.Code)
	e.Str(m.Message)
}

func (m *Notify) encodePayload(e *Encoder) {
	e.Str(m.Message)
}

func (m *Hello) encodePayload(e *Encoder) {
	e.U32(m.Protocol)
	e.Blob(m.LicenseKey)
	e.Str(m.Hostname)
}

func (m *PullMetadata) encodePayload(e *Encoder) {
	e.U32(m.Flags)
	e.Seq(len(m.Hashes))
	for _, h := range m.Hashes {
		e.Blob(h)
	}
}

func (m *PullMetadataResult) encodePayload(e *Encoder) {
	e.Seq(len(m.Statuses))
	for _, s := range m.Statuses {
		e.U32(s)
	}
	e.Seq(len(m.Funcs))
	for i := range m.Funcs {
		f := &m.Funcs[i]
		e.Str(f.Name)
		e.U32(f.Len)
		e.Blob(f.Metadata)
		e.U32(f.Popularity)
	}
}

func (m *PushMetadata) encodePayload(e *Encoder) {
	e.U32(m.Flags)
	e.Str(m.Idb)
	e.Seq(len(m.Funcs))
	for i := range m.Funcs {
		f := &m.Funcs[i]
		e.Str(f.Name)
		e.U32(f.Len)
		e.Blob(f.Hash)
		e.Blob(f.Metadata)
	}
}

func (m *PushMetadataResult) encodePayload(e *Encoder) {
	e.Seq(len(m.Statuses))
	for _, s := range m.Statuses {
		e.U32(s)
	}
}

func (m *Fail) decodePayload(d *Decoder) (err error) {
	if m.Code, err = d.U32(); err != nil {
		return err
	}
	m.Message, err = d.Str()
	return err
}

func (m *Notify) decodePayload(d *Decoder) (err error) {
	m.Message, err = d.Str()
	return err
}

func (m *Hello) decodePayload(d *Decoder) (err error) {
	if m.Protocol, err = d.U32(); err != nil {
		return err
	}
	if m.LicenseKey, err = d.Blob(); err != nil {
		return err
	}
	m.Hostname, err = d.Str()
	return err
}

func (m *PullMetadata) decodePayload(d *Decoder) (err error) {
	if m.Flags, err = d.U32(); err != nil {
		return err
	}
	n, err := d.Seq()
	if err != nil {
		return err
	}
	m.Hashes = make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		h, err := d.Blob()
		if err != nil {
			return err
		}
		m.Hashes = append(m.Hashes, h)
	}
	return nil
}

func (m *PullMetadataResult) decodePayload(d *Decoder) error {
	n, err := d.Seq()
	if err != nil {
		return err
	}
	m.Statuses = make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		s, err := d.U32()
		if err != nil {
			return err
		}
		m.Statuses = append(m.Statuses, s)
	}
	if n, err = d.Seq(); err != nil {
		return err
	}
	m.Funcs = make([]FuncInfo, 0, n)
	for i := 0; i < n; i++ {
		var f FuncInfo
		if f.Name, err = d.Str(); err != nil {
			return err
		}
		if f.Len, err = d.U32(); err != nil {
			return err
		}
		if f.Metadata, err = d.Blob(); err != nil {
			return err
		}
		if f.Popularity, err = d.U32(); err != nil {
			return err
		}
		m.Funcs = append(m.Funcs, f)
	}
	return nil
}

func (m *PushMetadata) decodePayload(d *Decoder) (err error) {
	if m.Flags, err = d.U32(); err != nil {
		return err
	}
	if m.Idb, err = d.Str(); err != nil {
		return err
	}
	n, err := d.Seq()
	if err != nil {
		return err
	}
	m.Funcs = make([]FuncEntry, 0, n)
	for i := 0; i < n; i++ {
		var f FuncEntry
		if f.Name, err = d.Str(); err != nil {
			return err
		}
		if f.Len, err = d.U32(); err != nil {
			return err
		}
		if f.Hash, err = d.Blob(); err != nil {
			return err
		}
		if f.Metadata, err = d.Blob(); err != nil {
			return err
		}
		m.Funcs = append(m.Funcs, f)
	}
	return nil
}

func (m *PushMetadataResult) decodePayload(d *Decoder) error {
	n, err := d.Seq()
	if err != nil {
		return err
	}
	m.Statuses = make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		s, err := d.U32()
		if err != nil {
			return err
		}
		m.Statuses = append(m.Statuses, s)
	}
	return nil
}

type payloadDecoder interface {
	Message
	decodePayload(d *Decoder) error
}

// decodeCheck runs a payload decoder and trace-logs leftover bytes.
// Leftovers are never an error: a newer peer may append fields an
// older decoder does not know about.
func decodeCheck(m payloadDecoder, payload []byte) (Message, error) {
	d := NewDecoder(payload)
	if err := m.decodePayload(d); err != nil {
		return nil, fmt.Errorf("decoding %T: %w", m, err)
	}
	if rem := d.Remaining(); rem > 0 {
		log.Trace().Int("remaining", rem).Type("message", m).Msg("trailing bytes after decode")
	}
	return m, nil
}

// Decode turns a packet buffer (code byte at index 0, as returned by
// ReadPacket) into a typed message. Payload byte fields are sub-slices
// of buf and must not outlive it.
func Decode(buf []byte) (Message, error) {
	if len(buf) == 0 {
		return nil, invalidf("empty packet buffer")
	}
	payload := buf[1:]

	switch buf[0] {
	case codeOk:
		if len(payload) > 0 {
			log.Trace().Int("bytes", len(payload)).Msg("Ok message with additional data")
		}
		return &Ok{}, nil
	case codeFail:
		return decodeCheck(&Fail{}, payload)
	case codeNotify:
		return decodeCheck(&Notify{}, payload)
	case codeHello:
		return decodeCheck(&Hello{}, payload)
	case codePullMetadata:
		return decodeCheck(&PullMetadata{}, payload)
	case codePullMetadataResult:
		return decodeCheck(&PullMetadataResult{}, payload)
	case codePushMetadata:
		return decodeCheck(&PushMetadata{}, payload)
	case codePushMetadataResult:
		return decodeCheck(&PushMetadataResult{}, payload)
	}

	log.Trace().Uint8("code", buf[0]).Msg("got invalid message type")
	return nil, invalidf("unknown message type 0x%02x", buf[0])
}

// Encode serializes a message into a packet buffer: raw code byte
// first, then the codec-encoded payload.
func Encode(m Message) []byte {
	e := NewEncoder(32)
	e.U8(m.code())
	m.encodePayload(e)
	return e.Bytes()
}

// Write encodes m and frames it onto w. The only write-path I/O in
// this package.
func Write(w io.Writer, m Message) error {
	return WritePacket(w, Encode(m))
}
