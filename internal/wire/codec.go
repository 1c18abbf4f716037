package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"
)

// Wire envelope:
//
//	[length : uint32 LE][tag : byte][tag-specific fields]
//
// length counts everything after the length prefix itself. Strings and
// opaque byte payloads are themselves length-prefixed with a uint32 LE.
// Multi-byte numeric fields are little-endian. Unknown tags are a decode
// error — the variant set is closed (spec §4.A).

const maxFrameLen = 16 << 20 // 16MiB guards against a corrupt length prefix

// instanceInfoWireSize is the encoded size of one InstanceInfo (uuid +
// two uint32 fields), used to bound a claimed TagInstances count against
// the bytes actually remaining in the frame before preallocating.
const instanceInfoWireSize = 16 + 4 + 4

// EncodeClientMsg serializes m into a ready-to-write framed envelope.
func EncodeClientMsg(m ClientMsg) ([]byte, error) {
	body := new(bytes.Buffer)
	body.WriteByte(byte(m.Tag))

	switch m.Tag {
	case TagHello:
		writeUUID(body, m.ClientID)
		writeString(body, m.ClientName)
	case TagJoinInstance:
		writeUUID(body, m.InstanceID)
	case TagLeaveInstance:
		// no fields
	case TagPing:
		writeFloat64(body, m.Tick)
	case TagRefreshInstances:
		// no fields
	case TagCustomMsg:
		writeBytes(body, m.Payload)
	default:
		return nil, fmt.Errorf("wire: encode client msg: unknown tag %d", m.Tag)
	}

	return frame(body.Bytes()), nil
}

// DecodeClientMsg reads exactly one framed envelope from r.
func DecodeClientMsg(r io.Reader) (ClientMsg, error) {
	body, err := readFrame(r)
	if err != nil {
		return ClientMsg{}, err
	}
	if len(body) == 0 {
		return ClientMsg{}, fmt.Errorf("wire: decode client msg: empty frame")
	}

	br := bytes.NewReader(body[1:])
	m := ClientMsg{Tag: ClientTag(body[0])}

	switch m.Tag {
	case TagHello:
		id, err := readUUID(br)
		if err != nil {
			return ClientMsg{}, err
		}
		name, err := readString(br)
		if err != nil {
			return ClientMsg{}, err
		}
		m.ClientID, m.ClientName = id, name
	case TagJoinInstance:
		id, err := readUUID(br)
		if err != nil {
			return ClientMsg{}, err
		}
		m.InstanceID = id
	case TagLeaveInstance:
	case TagPing:
		tick, err := readFloat64(br)
		if err != nil {
			return ClientMsg{}, err
		}
		m.Tick = tick
	case TagRefreshInstances:
	case TagCustomMsg:
		payload, err := readBytes(br)
		if err != nil {
			return ClientMsg{}, err
		}
		m.Payload = payload
	default:
		return ClientMsg{}, fmt.Errorf("wire: decode client msg: unknown tag %d", m.Tag)
	}

	return m, nil
}

// EncodeServerMsg serializes m into a ready-to-write framed envelope.
func EncodeServerMsg(m ServerMsg) ([]byte, error) {
	body := new(bytes.Buffer)
	body.WriteByte(byte(m.Tag))

	switch m.Tag {
	case TagJoinedLobby:
		// no fields
	case TagInstances:
		writeUint32(body, uint32(len(m.InstanceList)))
		for _, info := range m.InstanceList {
			writeInstanceInfo(body, info)
		}
	case TagJoinedInstance, TagJoinRejected:
		writeInstanceInfo(body, m.Instance)
	case TagPong:
		writeFloat64(body, m.Tick)
		writeFloat32(body, m.ServerBytesSec)
		writeFloat32(body, m.ClientBytesSec)
	case TagCustom:
		writeBytes(body, m.Payload)
	default:
		return nil, fmt.Errorf("wire: encode server msg: unknown tag %d", m.Tag)
	}

	return frame(body.Bytes()), nil
}

// DecodeServerMsg reads exactly one framed envelope from r.
func DecodeServerMsg(r io.Reader) (ServerMsg, error) {
	body, err := readFrame(r)
	if err != nil {
		return ServerMsg{}, err
	}
	if len(body) == 0 {
		return ServerMsg{}, fmt.Errorf("wire: decode server msg: empty frame")
	}

	br := bytes.NewReader(body[1:])
	m := ServerMsg{Tag: ServerTag(body[0])}

	switch m.Tag {
	case TagJoinedLobby:
	case TagInstances:
		n, err := readUint32(br)
		if err != nil {
			return ServerMsg{}, err
		}
		if int64(n)*instanceInfoWireSize > int64(br.Len()) {
			return ServerMsg{}, fmt.Errorf("wire: instance list count %d exceeds remaining frame (%d)", n, br.Len())
		}
		list := make([]InstanceInfo, 0, n)
		for range n {
			info, err := readInstanceInfo(br)
			if err != nil {
				return ServerMsg{}, err
			}
			list = append(list, info)
		}
		m.InstanceList = list
	case TagJoinedInstance, TagJoinRejected:
		info, err := readInstanceInfo(br)
		if err != nil {
			return ServerMsg{}, err
		}
		m.Instance = info
	case TagPong:
		tick, err := readFloat64(br)
		if err != nil {
			return ServerMsg{}, err
		}
		serverRate, err := readFloat32(br)
		if err != nil {
			return ServerMsg{}, err
		}
		clientRate, err := readFloat32(br)
		if err != nil {
			return ServerMsg{}, err
		}
		m.Tick, m.ServerBytesSec, m.ClientBytesSec = tick, serverRate, clientRate
	case TagCustom:
		payload, err := readBytes(br)
		if err != nil {
			return ServerMsg{}, err
		}
		m.Payload = payload
	default:
		return ServerMsg{}, fmt.Errorf("wire: decode server msg: unknown tag %d", m.Tag)
	}

	return m, nil
}

func frame(body []byte) []byte {
	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)
	return out
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxFrameLen {
		return nil, fmt.Errorf("wire: frame length %d exceeds max %d", n, maxFrameLen)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

func writeInstanceInfo(w *bytes.Buffer, info InstanceInfo) {
	writeUUID(w, info.ID)
	writeUint32(w, info.CurrentPlayers)
	writeUint32(w, info.MaxPlayers)
}

func readInstanceInfo(r *bytes.Reader) (InstanceInfo, error) {
	id, err := readUUID(r)
	if err != nil {
		return InstanceInfo{}, err
	}
	current, err := readUint32(r)
	if err != nil {
		return InstanceInfo{}, err
	}
	max, err := readUint32(r)
	if err != nil {
		return InstanceInfo{}, err
	}
	return InstanceInfo{ID: id, CurrentPlayers: current, MaxPlayers: max}, nil
}

func writeUUID(w *bytes.Buffer, id uuid.UUID) {
	w.Write(id[:])
}

func readUUID(r io.Reader) (uuid.UUID, error) {
	var id uuid.UUID
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return uuid.UUID{}, err
	}
	return id, nil
}

func writeString(w *bytes.Buffer, s string) {
	writeBytes(w, []byte(s))
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeBytes(w *bytes.Buffer, b []byte) {
	writeUint32(w, uint32(len(b)))
	w.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if int64(n) > int64(r.Len()) {
		return nil, fmt.Errorf("wire: byte field length %d exceeds remaining frame (%d)", n, r.Len())
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeUint32(w *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.Write(buf[:])
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeFloat64(w *bytes.Buffer, v float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	w.Write(buf[:])
}

func readFloat64(r io.Reader) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[:])), nil
}

func writeFloat32(w *bytes.Buffer, v float32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
	w.Write(buf[:])
}

func readFloat32(r io.Reader) (float32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[:])), nil
}
