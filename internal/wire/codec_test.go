package wire

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
)

func TestClientMsgRoundTrip(t *testing.T) {
	tests := map[string]ClientMsg{
		"hello":            {Tag: TagHello, ClientID: uuid.New(), ClientName: "nova"},
		"join instance":    {Tag: TagJoinInstance, InstanceID: uuid.New()},
		"leave instance":   {Tag: TagLeaveInstance},
		"ping":             {Tag: TagPing, Tick: 42.5},
		"refresh":          {Tag: TagRefreshInstances},
		"custom msg":       {Tag: TagCustomMsg, Payload: []byte("hello world")},
		"custom msg empty": {Tag: TagCustomMsg, Payload: []byte{}},
	}

	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			encoded, err := EncodeClientMsg(want)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}

			got, err := DecodeClientMsg(bytes.NewReader(encoded))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}

			if got.Tag != want.Tag || got.ClientID != want.ClientID ||
				got.ClientName != want.ClientName || got.InstanceID != want.InstanceID ||
				got.Tick != want.Tick || !bytes.Equal(got.Payload, want.Payload) {
				t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
			}
		})
	}
}

func TestServerMsgRoundTrip(t *testing.T) {
	info := InstanceInfo{ID: uuid.New(), CurrentPlayers: 2, MaxPlayers: 4}

	tests := map[string]ServerMsg{
		"joined lobby":    {Tag: TagJoinedLobby},
		"instances empty": {Tag: TagInstances, InstanceList: nil},
		"instances":       {Tag: TagInstances, InstanceList: []InstanceInfo{info, {ID: uuid.New(), MaxPlayers: 8}}},
		"joined instance": {Tag: TagJoinedInstance, Instance: info},
		"join rejected":   {Tag: TagJoinRejected, Instance: info},
		"pong":            {Tag: TagPong, Tick: 7, ServerBytesSec: 120.5, ClientBytesSec: 64},
		"custom":          {Tag: TagCustom, Payload: []byte{1, 2, 3}},
	}

	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			encoded, err := EncodeServerMsg(want)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}

			got, err := DecodeServerMsg(bytes.NewReader(encoded))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}

			if got.Tag != want.Tag || len(got.InstanceList) != len(want.InstanceList) ||
				got.Instance != want.Instance || got.Tick != want.Tick ||
				got.ServerBytesSec != want.ServerBytesSec || got.ClientBytesSec != want.ClientBytesSec ||
				!bytes.Equal(got.Payload, want.Payload) {
				t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
			}
			for i := range got.InstanceList {
				if got.InstanceList[i] != want.InstanceList[i] {
					t.Fatalf("instance %d mismatch: got %+v, want %+v", i, got.InstanceList[i], want.InstanceList[i])
				}
			}
		})
	}
}

func TestDecodeClientMsgUnknownTag(t *testing.T) {
	raw := frame([]byte{0xFF})
	if _, err := DecodeClientMsg(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected decode error for unknown tag")
	}
}

func TestDecodeServerMsgUnknownTag(t *testing.T) {
	raw := frame([]byte{0xFF})
	if _, err := DecodeServerMsg(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected decode error for unknown tag")
	}
}

func TestDecodeClientMsgOversizedFrameRejected(t *testing.T) {
	var lenBuf [4]byte
	// length field claims more than maxFrameLen without supplying the bytes
	lenBuf[0], lenBuf[1], lenBuf[2], lenBuf[3] = 0xFF, 0xFF, 0xFF, 0x7F
	if _, err := DecodeClientMsg(bytes.NewReader(lenBuf[:])); err == nil {
		t.Fatal("expected error for oversized frame length")
	}
}

func TestDecodeClientMsgCustomPayloadLengthLiesRejectedWithoutHugeAlloc(t *testing.T) {
	// A tiny, well-formed outer frame whose inner payload-length field
	// claims far more bytes than the frame actually carries. Must be
	// rejected by comparing against the reader's remaining length, not by
	// attempting to allocate and then failing the read.
	body := []byte{byte(TagCustomMsg), 0xFE, 0xFF, 0xFF, 0xFF} // length = 0xFFFFFFFE
	raw := frame(body)

	if _, err := DecodeClientMsg(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected error for payload length exceeding remaining frame")
	}
}

func TestDecodeServerMsgInstanceListCountLiesRejectedWithoutHugeAlloc(t *testing.T) {
	// Count claims billions of InstanceInfo entries while the frame only
	// has a handful of bytes left.
	body := []byte{byte(TagInstances), 0xFF, 0xFF, 0xFF, 0x7F}
	raw := frame(body)

	if _, err := DecodeServerMsg(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected error for instance list count exceeding remaining frame")
	}
}
