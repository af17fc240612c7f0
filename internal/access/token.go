package access

// Token is a CapabilityToken{node_id, capability, issued_at, expires_at,
// context, signature}, per spec §4.3.
type Token struct {
	Node       NodeID
	Capability Capability
	IssuedAt   int64
	ExpiresAt  int64
	Context    []byte
	Signature  []byte
}

// signingBytes builds the fixed little-endian wire encoding that is both
// signed and verified, mirroring internal/ledger's private wire-codec
// pattern (length-prefixed strings/bytes, fixed-width integers) rather
// than a generic serializer.
func (t *Token) signingBytes() []byte {
	capBytes := []byte(t.Capability)
	out := make([]byte, 0, 32+4+len(capBytes)+8+8+4+len(t.Context))
	out = append(out, t.Node[:]...)
	out = appendU32(out, uint32(len(capBytes)))
	out = append(out, capBytes...)
	out = appendU64(out, uint64(t.IssuedAt))
	out = appendU64(out, uint64(t.ExpiresAt))
	out = appendU32(out, uint32(len(t.Context)))
	out = append(out, t.Context...)
	return out
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendU64(b []byte, v uint64) []byte {
	return append(b,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}
