package access

import (
	"encoding/binary"
	"fmt"

	"cashew/internal/crypto"
)

// EncodeRevocation serializes e to the fixed little-endian wire layout
// gossip's RevocationBroadcast carries, mirroring internal/ledger's own
// Encode and this package's Token.signingBytes conventions.
func EncodeRevocation(e *RevocationEntry) []byte {
	capBytes := []byte(e.Capability)
	reasonBytes := []byte(e.Reason)
	buf := make([]byte, 0, 32+32+4+len(capBytes)+4+len(reasonBytes)+8+32+4+len(e.Context)+4+len(e.Signature))
	buf = append(buf, e.ID[:]...)
	buf = append(buf, e.Node[:]...)
	buf = appendU32(buf, uint32(len(capBytes)))
	buf = append(buf, capBytes...)
	buf = appendU32(buf, uint32(len(reasonBytes)))
	buf = append(buf, reasonBytes...)
	buf = appendU64(buf, uint64(e.RevokedAt))
	buf = append(buf, e.Revoker[:]...)
	buf = appendU32(buf, uint32(len(e.Context)))
	buf = append(buf, e.Context...)
	buf = appendU32(buf, uint32(len(e.Signature)))
	buf = append(buf, e.Signature...)
	return buf
}

// DecodeRevocation parses b into a RevocationEntry.
func DecodeRevocation(b []byte) (*RevocationEntry, error) {
	const minFixed = 32 + 32 + 4 + 4 + 8 + 32 + 4 + 4
	if len(b) < minFixed {
		return nil, fmt.Errorf("access: decode revocation: buffer too short (%d < %d)", len(b), minFixed)
	}
	e := &RevocationEntry{}
	off := 0
	readHash := func() crypto.Hash {
		var h crypto.Hash
		copy(h[:], b[off:off+32])
		off += 32
		return h
	}
	readU32 := func() (uint32, error) {
		if off+4 > len(b) {
			return 0, fmt.Errorf("access: decode revocation: truncated length")
		}
		v := binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
		return v, nil
	}

	e.ID = readHash()
	e.Node = readHash()

	capLen, err := readU32()
	if err != nil {
		return nil, err
	}
	if off+int(capLen) > len(b) {
		return nil, fmt.Errorf("access: decode revocation: capability overrun")
	}
	e.Capability = Capability(b[off : off+int(capLen)])
	off += int(capLen)

	reasonLen, err := readU32()
	if err != nil {
		return nil, err
	}
	if off+int(reasonLen) > len(b) {
		return nil, fmt.Errorf("access: decode revocation: reason overrun")
	}
	e.Reason = string(b[off : off+int(reasonLen)])
	off += int(reasonLen)

	if off+8 > len(b) {
		return nil, fmt.Errorf("access: decode revocation: truncated revoked_at")
	}
	e.RevokedAt = int64(binary.LittleEndian.Uint64(b[off : off+8]))
	off += 8

	if off+32 > len(b) {
		return nil, fmt.Errorf("access: decode revocation: truncated revoker")
	}
	e.Revoker = readHash()

	ctxLen, err := readU32()
	if err != nil {
		return nil, err
	}
	if off+int(ctxLen) > len(b) {
		return nil, fmt.Errorf("access: decode revocation: context overrun")
	}
	e.Context = append([]byte(nil), b[off:off+int(ctxLen)]...)
	off += int(ctxLen)

	sigLen, err := readU32()
	if err != nil {
		return nil, err
	}
	if off+int(sigLen) != len(b) {
		return nil, fmt.Errorf("access: decode revocation: signature length mismatch")
	}
	e.Signature = append([]byte(nil), b[off:off+int(sigLen)]...)
	off += int(sigLen)

	return e, nil
}
