package rpc

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	dec, err := Decode(Encode(m))
	if err != nil {
		t.Fatalf("decode %T: %v", m, err)
	}
	return dec
}

func TestRoundTripOk(t *testing.T) {
	if _, ok := roundTrip(t, &Ok{}).(*Ok); !ok {
		t.Fatal("expected Ok")
	}
}

func TestRoundTripFail(t *testing.T) {
	m := &Fail{Code: 3, Message: "no such metadata"}
	dec, ok := roundTrip(t, m).(*Fail)
	if !ok || dec.Code != m.Code || dec.Message != m.Message {
		t.Fatalf("got %+v", dec)
	}
}

func TestRoundTripNotify(t *testing.T) {
	m := &Notify{Message: "server going down"}
	dec, ok := roundTrip(t, m).(*Notify)
	if !ok || dec.Message != m.Message {
		t.Fatalf("got %+v", dec)
	}
}

func TestRoundTripHello(t *testing.T) {
	m := &Hello{Protocol: 2, LicenseKey: []byte("key-0042"), Hostname: "analyst-box"}
	dec, ok := roundTrip(t, m).(*Hello)
	if !ok || dec.Protocol != m.Protocol || dec.Hostname != m.Hostname {
		t.Fatalf("got %+v", dec)
	}
	if !bytes.Equal(dec.LicenseKey, m.LicenseKey) {
		t.Fatalf("license key: %q", dec.LicenseKey)
	}
}

func TestRoundTripPullMetadata(t *testing.T) {
	m := &PullMetadata{Flags: 1, Hashes: [][]byte{[]byte("hash-a"), []byte("hash-b")}}
	dec, ok := roundTrip(t, m).(*PullMetadata)
	if !ok || dec.Flags != m.Flags || len(dec.Hashes) != 2 {
		t.Fatalf("got %+v", dec)
	}
	for i := range m.Hashes {
		if !bytes.Equal(dec.Hashes[i], m.Hashes[i]) {
			t.Fatalf("hash %d: %q", i, dec.Hashes[i])
		}
	}
}

func TestRoundTripPullMetadataResult(t *testing.T) {
	m := &PullMetadataResult{
		Statuses: []uint32{1, 0, 1},
		Funcs: []FuncInfo{
			{Name: "memcpy", Len: 64, Metadata: []byte{9, 8, 7}, Popularity: 12},
			{Name: "strlen", Len: 32, Metadata: []byte{1}, Popularity: 3},
		},
	}
	dec, ok := roundTrip(t, m).(*PullMetadataResult)
	if !ok || !reflect.DeepEqual(dec.Statuses, m.Statuses) {
		t.Fatalf("got %+v", dec)
	}
	if !reflect.DeepEqual(dec.Funcs, m.Funcs) {
		t.Fatalf("funcs: %+v", dec.Funcs)
	}
}

func TestRoundTripPushMetadata(t *testing.T) {
	m := &PushMetadata{
		Flags: 0,
		Idb:   "sample.i64",
		Funcs: []FuncEntry{
			{Name: "sub_401000", Len: 128, Hash: []byte("h1"), Metadata: []byte("md1")},
		},
	}
	dec, ok := roundTrip(t, m).(*PushMetadata)
	if !ok || dec.Idb != m.Idb || !reflect.DeepEqual(dec.Funcs, m.Funcs) {
		t.Fatalf("got %+v", dec)
	}
}

func TestRoundTripPushMetadataResult(t *testing.T) {
	m := &PushMetadataResult{Statuses: []uint32{1, 1, 0}}
	dec, ok := roundTrip(t, m).(*PushMetadataResult)
	if !ok || !reflect.DeepEqual(dec.Statuses, m.Statuses) {
		t.Fatalf("got %+v", dec)
	}
}

func TestDecodeUnknownCode(t *testing.T) {
	_, err := Decode([]byte{0xff, 0, 0, 0, 0})
	if !errors.Is(err, ErrInvalidData) {
		t.Fatalf("expected invalid data, got %v", err)
	}
}

func TestDecodeEmptyBuffer(t *testing.T) {
	if _, err := Decode(nil); !errors.Is(err, ErrInvalidData) {
		t.Fatal("expected invalid data")
	}
}

func TestDecodeOkTrailingBytes(t *testing.T) {
	// Extra bytes after an Ok are tolerated, not an error.
	buf := append(Encode(&Ok{}), 0xde, 0xad)
	m, err := Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.(*Ok); !ok {
		t.Fatalf("expected Ok, got %T", m)
	}
}

func TestDecodeTruncatedHello(t *testing.T) {
	buf := Encode(&Hello{Protocol: 2, LicenseKey: []byte("k"), Hostname: "h"})
	if _, err := Decode(buf[:6]); !errors.Is(err, ErrSerde) {
		t.Fatalf("expected serde error, got %v", err)
	}
}

func TestEncodeMeetsPayloadFloor(t *testing.T) {
	// Every variant's minimal encoding must be a valid packet payload.
	msgs := []Message{
		&Ok{}, &Fail{}, &Notify{}, &Hello{},
		&PullMetadata{}, &PullMetadataResult{},
		&PushMetadata{}, &PushMetadataResult{},
	}
	for _, m := range msgs {
		if n := len(Encode(m)) - 1; n < minPayload {
			t.Fatalf("%T payload is %d bytes, below floor %d", m, n, minPayload)
		}
	}
}
