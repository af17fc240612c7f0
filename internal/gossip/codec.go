package gossip

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"cashew/internal/crypto"
	"cashew/internal/ledger"
)

// encodeEnvelope serializes env as a fixed header (type:u8,
// message_id:[32], timestamp:u64, hop_count:u8, payload_len:u32, all
// integers little-endian) followed by the raw payload bytes.
func encodeEnvelope(env *Envelope) []byte {
	buf := make([]byte, 0, 1+32+8+1+4+len(env.Payload))
	buf = append(buf, byte(env.Type))
	buf = append(buf, env.MessageID.Bytes()...)
	var tsBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], uint64(env.Timestamp))
	buf = append(buf, tsBuf[:]...)
	buf = append(buf, env.HopCount)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(env.Payload)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, env.Payload...)
	return buf
}

const envelopeHeaderSize = 1 + 32 + 8 + 1 + 4

func decodeEnvelope(b []byte) (*Envelope, error) {
	if len(b) < envelopeHeaderSize {
		return nil, fmt.Errorf("gossip: envelope too short (%d < %d)", len(b), envelopeHeaderSize)
	}
	env := &Envelope{}
	off := 0
	env.Type = MessageType(b[off])
	off++
	var id crypto.Hash
	copy(id[:], b[off:off+32])
	env.MessageID = id
	off += 32
	env.Timestamp = int64(binary.LittleEndian.Uint64(b[off : off+8]))
	off += 8
	env.HopCount = b[off]
	off++
	plen := binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	if off+int(plen) != len(b) {
		return nil, fmt.Errorf("gossip: envelope payload length mismatch")
	}
	env.Payload = append([]byte(nil), b[off:off+int(plen)]...)
	return env, nil
}

// newEnvelope builds an envelope with a fresh message id derived from the
// payload content, so duplicate rebroadcasts of identical payloads
// dedupe naturally.
func newEnvelope(t MessageType, payload []byte, timestamp int64) *Envelope {
	return &Envelope{
		Type:      t,
		MessageID: crypto.SumAll([]byte{byte(t)}, payload),
		Payload:   payload,
		Timestamp: timestamp,
		HopCount:  0,
	}
}

func encodeSyncRequest(p SyncRequestPayload) []byte {
	b, _ := json.Marshal(p)
	return b
}

func decodeSyncRequest(b []byte) (SyncRequestPayload, error) {
	var p SyncRequestPayload
	err := json.Unmarshal(b, &p)
	return p, err
}

func encodeCheckpoint(p CheckpointPayload) []byte {
	b, _ := json.Marshal(p)
	return b
}

func decodeCheckpoint(b []byte) (CheckpointPayload, error) {
	var p CheckpointPayload
	err := json.Unmarshal(b, &p)
	return p, err
}

// encodeSyncResponse flattens each event through ledger.Encode, framed by
// a u32 length prefix per spec §6.3's LedgerSyncMessage
// ({size:u32, bytes}...).
func encodeSyncResponse(events []*ledger.Event) []byte {
	var buf []byte
	var lenBuf [4]byte
	for _, e := range events {
		enc := ledger.Encode(e)
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(enc)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, enc...)
	}
	return buf
}

func decodeSyncResponse(b []byte) ([]*ledger.Event, error) {
	var events []*ledger.Event
	off := 0
	for off < len(b) {
		if off+4 > len(b) {
			return nil, fmt.Errorf("gossip: truncated sync response length prefix")
		}
		n := int(binary.LittleEndian.Uint32(b[off : off+4]))
		off += 4
		if off+n > len(b) {
			return nil, fmt.Errorf("gossip: truncated sync response event body")
		}
		e, err := ledger.Decode(b[off : off+n])
		if err != nil {
			return nil, err
		}
		events = append(events, e)
		off += n
	}
	return events, nil
}
