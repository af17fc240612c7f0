package ledger

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"cashew/internal/crypto"
)

// fieldHash computes BLAKE3 over the event's content fields, excluding both
// event_id (which this hash defines) and signature (which is computed over
// the id plus these fields). This is the one place the implementation must
// resolve an ambiguity left open by spec §3/§6.1: event_id cannot be an
// input to its own definition, so compute_hash ranges over
// {type, source_node, timestamp, epoch, previous_hash, payload} only.
func fieldHash(e *Event) crypto.Hash {
	var tsBuf, epochBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], uint64(e.Timestamp))
	binary.LittleEndian.PutUint64(epochBuf[:], e.Epoch)
	return crypto.SumAll(
		[]byte{byte(e.Type)},
		e.SourceNode.Bytes(),
		tsBuf[:],
		epochBuf[:],
		e.PreviousHash.Bytes(),
		e.Payload,
	)
}

// signingBytes returns the exact byte sequence signed: the full wire
// encoding of the event minus the trailing signature field, per spec §6.1
// ("signature over the entire event minus the signature field").
func signingBytes(e *Event) []byte {
	var buf bytes.Buffer
	buf.Write(e.EventID.Bytes())
	buf.WriteByte(byte(e.Type))
	buf.Write(e.SourceNode.Bytes())
	var tsBuf, epochBuf, lenBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], uint64(e.Timestamp))
	binary.LittleEndian.PutUint64(epochBuf[:], e.Epoch)
	buf.Write(tsBuf[:])
	buf.Write(epochBuf[:])
	buf.Write(e.PreviousHash.Bytes())
	binary.LittleEndian.PutUint32(lenBuf[:4], uint32(len(e.Payload)))
	buf.Write(lenBuf[:4])
	buf.Write(e.Payload)
	return buf.Bytes()
}

// Encode serializes e to the fixed on-wire layout of spec §6.1.
func Encode(e *Event) []byte {
	buf := make([]byte, 0, 32+1+32+8+8+32+4+len(e.Payload)+64)
	buf = append(buf, e.EventID.Bytes()...)
	buf = append(buf, byte(e.Type))
	buf = append(buf, e.SourceNode.Bytes()...)
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(e.Timestamp))
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], e.Epoch)
	buf = append(buf, tmp[:]...)
	buf = append(buf, e.PreviousHash.Bytes()...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.Payload)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, e.Payload...)
	buf = append(buf, e.Signature[:]...)
	return buf
}

// minEventWire is the smallest possible encoded event: every fixed field
// present, zero-length payload.
const minEventWire = 32 + 1 + 32 + 8 + 8 + 32 + 4 + 0 + 64

// Decode parses b into an Event per the spec §6.1 wire layout.
func Decode(b []byte) (*Event, error) {
	if len(b) < minEventWire {
		return nil, fmt.Errorf("ledger: decode: buffer too short (%d < %d)", len(b), minEventWire)
	}
	e := &Event{}
	off := 0
	readHash := func() crypto.Hash {
		var h crypto.Hash
		copy(h[:], b[off:off+32])
		off += 32
		return h
	}
	e.EventID = readHash()
	e.Type = EventType(b[off])
	off++
	e.SourceNode = readHash()
	e.Timestamp = int64(binary.LittleEndian.Uint64(b[off : off+8]))
	off += 8
	e.Epoch = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	e.PreviousHash = readHash()
	payloadLen := binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	if off+int(payloadLen)+64 > len(b) {
		return nil, fmt.Errorf("ledger: decode: payload/signature overrun")
	}
	e.Payload = append([]byte(nil), b[off:off+int(payloadLen)]...)
	off += int(payloadLen)
	copy(e.Signature[:], b[off:off+64])
	off += 64
	if off != len(b) {
		return nil, fmt.Errorf("ledger: decode: %d trailing bytes", len(b)-off)
	}
	return e, nil
}

// NewSignedEvent builds and signs a new event authored by priv, given its
// previous chain hash.
func NewSignedEvent(eventType EventType, source NodeID, timestamp int64, previousHash crypto.Hash, payload []byte, priv ed25519.PrivateKey) *Event {
	e := &Event{
		Type:         eventType,
		SourceNode:   source,
		Timestamp:    timestamp,
		Epoch:        EpochOf(timestamp),
		PreviousHash: previousHash,
		Payload:      payload,
	}
	e.EventID = fieldHash(e)
	sig := crypto.Sign(priv, signingBytes(e))
	copy(e.Signature[:], sig)
	return e
}

// VerifyEvent checks e's internal hash invariant and its signature under
// pub. It does not check chain linkage or clock skew (see Ledger.AppendExternal).
func VerifyEvent(e *Event, pub ed25519.PublicKey) error {
	if fieldHash(e) != e.EventID {
		return fmt.Errorf("ledger: event_id does not match computed hash")
	}
	if !crypto.Verify(pub, signingBytes(e), e.Signature[:]) {
		return fmt.Errorf("ledger: signature verification failed")
	}
	return nil
}
