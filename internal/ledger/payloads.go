package ledger

import "cashew/internal/crypto"

// KeyType enumerates the five capability-token key families of spec §3.
type KeyType uint8

const (
	KeyIdentity KeyType = iota
	KeyNode
	KeyNetwork
	KeyService
	KeyRouting
)

func (k KeyType) String() string {
	switch k {
	case KeyIdentity:
		return "IDENTITY"
	case KeyNode:
		return "NODE"
	case KeyNetwork:
		return "NETWORK"
	case KeyService:
		return "SERVICE"
	case KeyRouting:
		return "ROUTING"
	default:
		return "UNKNOWN"
	}
}

// IssuanceMethod enumerates how a key was minted, per spec §3/§4.3.
type IssuanceMethod uint8

const (
	MethodPow IssuanceMethod = iota
	MethodPostake
	MethodHybrid
	MethodVouched
	MethodTransferred
)

func (m IssuanceMethod) String() string {
	switch m {
	case MethodPow:
		return "pow"
	case MethodPostake:
		return "postake"
	case MethodHybrid:
		return "hybrid"
	case MethodVouched:
		return "vouched"
	case MethodTransferred:
		return "transferred"
	default:
		return "unknown"
	}
}

// DecayReason enumerates why a key decayed, per spec §4.1.
type DecayReason uint8

const (
	DecayInactivity DecayReason = iota
	DecayExpiration
	DecayResourceShortage
	DecayPoorPerformance
	DecayViolation
)

func (r DecayReason) String() string {
	switch r {
	case DecayInactivity:
		return "INACTIVITY"
	case DecayExpiration:
		return "EXPIRATION"
	case DecayResourceShortage:
		return "RESOURCE_SHORTAGE"
	case DecayPoorPerformance:
		return "POOR_PERFORMANCE"
	case DecayViolation:
		return "VIOLATION"
	default:
		return "UNKNOWN"
	}
}

// KeyIssuancePayload is KeyIssuance{key_type:u8, count:u32, method:u8,
// proof:[32]} per spec §6.1.
type KeyIssuancePayload struct {
	KeyType KeyType
	Count   uint32
	Method  IssuanceMethod
	Proof   crypto.Hash
}

func (p KeyIssuancePayload) Encode() []byte {
	w := &wireWriter{}
	w.byte(uint8(p.KeyType))
	w.u32(p.Count)
	w.byte(uint8(p.Method))
	w.hash(p.Proof)
	return w.bytesOut()
}

func DecodeKeyIssuance(b []byte) (KeyIssuancePayload, error) {
	r := newWireReader(b)
	var p KeyIssuancePayload
	kt, err := r.byte()
	if err != nil {
		return p, err
	}
	p.KeyType = KeyType(kt)
	if p.Count, err = r.u32(); err != nil {
		return p, err
	}
	m, err := r.byte()
	if err != nil {
		return p, err
	}
	p.Method = IssuanceMethod(m)
	if p.Proof, err = r.hash(); err != nil {
		return p, err
	}
	return p, nil
}

// NetworkMembershipPayload is NetworkMembership{network_id:[32],
// member:NodeID, role:len-prefixed-utf8} per spec §6.1.
type NetworkMembershipPayload struct {
	NetworkID crypto.Hash
	Member    NodeID
	Role      string
}

func (p NetworkMembershipPayload) Encode() []byte {
	w := &wireWriter{}
	w.hash(p.NetworkID)
	w.hash(p.Member)
	w.str(p.Role)
	return w.bytesOut()
}

func DecodeNetworkMembership(b []byte) (NetworkMembershipPayload, error) {
	r := newWireReader(b)
	var p NetworkMembershipPayload
	var err error
	if p.NetworkID, err = r.hash(); err != nil {
		return p, err
	}
	if p.Member, err = r.hash(); err != nil {
		return p, err
	}
	if p.Role, err = r.str(); err != nil {
		return p, err
	}
	return p, nil
}

// ThingReplicationPayload is ThingReplication{content_hash:[32],
// network_id:[32], host:NodeID, size:u64} per spec §6.1.
type ThingReplicationPayload struct {
	ContentHash crypto.Hash
	NetworkID   crypto.Hash
	Host        NodeID
	Size        uint64
}

func (p ThingReplicationPayload) Encode() []byte {
	w := &wireWriter{}
	w.hash(p.ContentHash)
	w.hash(p.NetworkID)
	w.hash(p.Host)
	w.u64(p.Size)
	return w.bytesOut()
}

func DecodeThingReplication(b []byte) (ThingReplicationPayload, error) {
	r := newWireReader(b)
	var p ThingReplicationPayload
	var err error
	if p.ContentHash, err = r.hash(); err != nil {
		return p, err
	}
	if p.NetworkID, err = r.hash(); err != nil {
		return p, err
	}
	if p.Host, err = r.hash(); err != nil {
		return p, err
	}
	if p.Size, err = r.u64(); err != nil {
		return p, err
	}
	return p, nil
}

// ReputationUpdatePayload is ReputationUpdate{subject:NodeID,
// score_delta:i32, reason:len-prefixed-utf8, evidence:[32]} per spec §6.1.
type ReputationUpdatePayload struct {
	Subject    NodeID
	ScoreDelta int32
	Reason     string
	Evidence   crypto.Hash
}

func (p ReputationUpdatePayload) Encode() []byte {
	w := &wireWriter{}
	w.hash(p.Subject)
	w.i32(p.ScoreDelta)
	w.str(p.Reason)
	w.hash(p.Evidence)
	return w.bytesOut()
}

func DecodeReputationUpdate(b []byte) (ReputationUpdatePayload, error) {
	r := newWireReader(b)
	var p ReputationUpdatePayload
	var err error
	if p.Subject, err = r.hash(); err != nil {
		return p, err
	}
	if p.ScoreDelta, err = r.i32(); err != nil {
		return p, err
	}
	if p.Reason, err = r.str(); err != nil {
		return p, err
	}
	if p.Evidence, err = r.hash(); err != nil {
		return p, err
	}
	return p, nil
}

// KeyTransferPayload records a completed key transfer between two owners.
type KeyTransferPayload struct {
	KeyType KeyType
	Count   uint32
	From    NodeID
	To      NodeID
}

func (p KeyTransferPayload) Encode() []byte {
	w := &wireWriter{}
	w.byte(uint8(p.KeyType))
	w.u32(p.Count)
	w.hash(p.From)
	w.hash(p.To)
	return w.bytesOut()
}

func DecodeKeyTransfer(b []byte) (KeyTransferPayload, error) {
	r := newWireReader(b)
	var p KeyTransferPayload
	var err error
	kt, err := r.byte()
	if err != nil {
		return p, err
	}
	p.KeyType = KeyType(kt)
	if p.Count, err = r.u32(); err != nil {
		return p, err
	}
	if p.From, err = r.hash(); err != nil {
		return p, err
	}
	if p.To, err = r.hash(); err != nil {
		return p, err
	}
	return p, nil
}

// KeyRevokedPayload records a revoked key balance debit.
type KeyRevokedPayload struct {
	Owner   NodeID
	KeyType KeyType
	Count   uint32
	Reason  string
}

func (p KeyRevokedPayload) Encode() []byte {
	w := &wireWriter{}
	w.hash(p.Owner)
	w.byte(uint8(p.KeyType))
	w.u32(p.Count)
	w.str(p.Reason)
	return w.bytesOut()
}

func DecodeKeyRevoked(b []byte) (KeyRevokedPayload, error) {
	r := newWireReader(b)
	var p KeyRevokedPayload
	var err error
	if p.Owner, err = r.hash(); err != nil {
		return p, err
	}
	kt, err := r.byte()
	if err != nil {
		return p, err
	}
	p.KeyType = KeyType(kt)
	if p.Count, err = r.u32(); err != nil {
		return p, err
	}
	if p.Reason, err = r.str(); err != nil {
		return p, err
	}
	return p, nil
}

// KeyDecayedPayload records a decayed key balance debit.
type KeyDecayedPayload struct {
	Owner   NodeID
	KeyType KeyType
	Count   uint32
	Reason  DecayReason
}

func (p KeyDecayedPayload) Encode() []byte {
	w := &wireWriter{}
	w.hash(p.Owner)
	w.byte(uint8(p.KeyType))
	w.u32(p.Count)
	w.byte(uint8(p.Reason))
	return w.bytesOut()
}

func DecodeKeyDecayed(b []byte) (KeyDecayedPayload, error) {
	r := newWireReader(b)
	var p KeyDecayedPayload
	var err error
	if p.Owner, err = r.hash(); err != nil {
		return p, err
	}
	kt, err := r.byte()
	if err != nil {
		return p, err
	}
	p.KeyType = KeyType(kt)
	if p.Count, err = r.u32(); err != nil {
		return p, err
	}
	reason, err := r.byte()
	if err != nil {
		return p, err
	}
	p.Reason = DecayReason(reason)
	return p, nil
}

// NetworkCreatedPayload records the birth of a Network and its quorum policy.
type NetworkCreatedPayload struct {
	NetworkID crypto.Hash
	ThingHash crypto.Hash
	Founder   NodeID
	MinQuorum uint32
	Target    uint32
	MaxQuorum uint32
}

func (p NetworkCreatedPayload) Encode() []byte {
	w := &wireWriter{}
	w.hash(p.NetworkID)
	w.hash(p.ThingHash)
	w.hash(p.Founder)
	w.u32(p.MinQuorum)
	w.u32(p.Target)
	w.u32(p.MaxQuorum)
	return w.bytesOut()
}

func DecodeNetworkCreated(b []byte) (NetworkCreatedPayload, error) {
	r := newWireReader(b)
	var p NetworkCreatedPayload
	var err error
	if p.NetworkID, err = r.hash(); err != nil {
		return p, err
	}
	if p.ThingHash, err = r.hash(); err != nil {
		return p, err
	}
	if p.Founder, err = r.hash(); err != nil {
		return p, err
	}
	if p.MinQuorum, err = r.u32(); err != nil {
		return p, err
	}
	if p.Target, err = r.u32(); err != nil {
		return p, err
	}
	if p.MaxQuorum, err = r.u32(); err != nil {
		return p, err
	}
	return p, nil
}

// NetworkInvitationPayload records a signed invitation, per spec §4.4.
type NetworkInvitationPayload struct {
	NetworkID crypto.Hash
	Inviter   NodeID
	Invitee   NodeID
	Role      string
	ExpiresAt int64
}

func (p NetworkInvitationPayload) Encode() []byte {
	w := &wireWriter{}
	w.hash(p.NetworkID)
	w.hash(p.Inviter)
	w.hash(p.Invitee)
	w.str(p.Role)
	w.u64(uint64(p.ExpiresAt))
	return w.bytesOut()
}

func DecodeNetworkInvitation(b []byte) (NetworkInvitationPayload, error) {
	r := newWireReader(b)
	var p NetworkInvitationPayload
	var err error
	if p.NetworkID, err = r.hash(); err != nil {
		return p, err
	}
	if p.Inviter, err = r.hash(); err != nil {
		return p, err
	}
	if p.Invitee, err = r.hash(); err != nil {
		return p, err
	}
	if p.Role, err = r.str(); err != nil {
		return p, err
	}
	exp, err := r.u64()
	if err != nil {
		return p, err
	}
	p.ExpiresAt = int64(exp)
	return p, nil
}

// NetworkMemberRemovedPayload records removal of a member from a Network.
type NetworkMemberRemovedPayload struct {
	NetworkID crypto.Hash
	Member    NodeID
	Reason    string
}

func (p NetworkMemberRemovedPayload) Encode() []byte {
	w := &wireWriter{}
	w.hash(p.NetworkID)
	w.hash(p.Member)
	w.str(p.Reason)
	return w.bytesOut()
}

func DecodeNetworkMemberRemoved(b []byte) (NetworkMemberRemovedPayload, error) {
	r := newWireReader(b)
	var p NetworkMemberRemovedPayload
	var err error
	if p.NetworkID, err = r.hash(); err != nil {
		return p, err
	}
	if p.Member, err = r.hash(); err != nil {
		return p, err
	}
	if p.Reason, err = r.str(); err != nil {
		return p, err
	}
	return p, nil
}

// NetworkDisbandedPayload records dissolution of a Network.
type NetworkDisbandedPayload struct {
	NetworkID crypto.Hash
	Reason    string
}

func (p NetworkDisbandedPayload) Encode() []byte {
	w := &wireWriter{}
	w.hash(p.NetworkID)
	w.str(p.Reason)
	return w.bytesOut()
}

func DecodeNetworkDisbanded(b []byte) (NetworkDisbandedPayload, error) {
	r := newWireReader(b)
	var p NetworkDisbandedPayload
	var err error
	if p.NetworkID, err = r.hash(); err != nil {
		return p, err
	}
	if p.Reason, err = r.str(); err != nil {
		return p, err
	}
	return p, nil
}

// ThingCreatedPayload announces a new Thing and its original host.
type ThingCreatedPayload struct {
	ContentHash crypto.Hash
	Creator     NodeID
	Size        uint64
}

func (p ThingCreatedPayload) Encode() []byte {
	w := &wireWriter{}
	w.hash(p.ContentHash)
	w.hash(p.Creator)
	w.u64(p.Size)
	return w.bytesOut()
}

func DecodeThingCreated(b []byte) (ThingCreatedPayload, error) {
	r := newWireReader(b)
	var p ThingCreatedPayload
	var err error
	if p.ContentHash, err = r.hash(); err != nil {
		return p, err
	}
	if p.Creator, err = r.hash(); err != nil {
		return p, err
	}
	if p.Size, err = r.u64(); err != nil {
		return p, err
	}
	return p, nil
}

// ThingRemovedPayload records a host dropping a Thing.
type ThingRemovedPayload struct {
	ContentHash crypto.Hash
	Host        NodeID
}

func (p ThingRemovedPayload) Encode() []byte {
	w := &wireWriter{}
	w.hash(p.ContentHash)
	w.hash(p.Host)
	return w.bytesOut()
}

func DecodeThingRemoved(b []byte) (ThingRemovedPayload, error) {
	r := newWireReader(b)
	var p ThingRemovedPayload
	var err error
	if p.ContentHash, err = r.hash(); err != nil {
		return p, err
	}
	if p.Host, err = r.hash(); err != nil {
		return p, err
	}
	return p, nil
}

// AttestationPayload records one peer's signed attestation about another,
// per SPEC_FULL.md §C.3.
type AttestationPayload struct {
	Subject  NodeID
	Attester NodeID
	Score    int32
	Evidence crypto.Hash
}

func (p AttestationPayload) Encode() []byte {
	w := &wireWriter{}
	w.hash(p.Subject)
	w.hash(p.Attester)
	w.i32(p.Score)
	w.hash(p.Evidence)
	return w.bytesOut()
}

func DecodeAttestation(b []byte) (AttestationPayload, error) {
	r := newWireReader(b)
	var p AttestationPayload
	var err error
	if p.Subject, err = r.hash(); err != nil {
		return p, err
	}
	if p.Attester, err = r.hash(); err != nil {
		return p, err
	}
	if p.Score, err = r.i32(); err != nil {
		return p, err
	}
	if p.Evidence, err = r.hash(); err != nil {
		return p, err
	}
	return p, nil
}

// VouchPayload records a reputation-gated key vouch, per spec §4.3.
type VouchPayload struct {
	Voucher NodeID
	Vouchee NodeID
	KeyType KeyType
}

func (p VouchPayload) Encode() []byte {
	w := &wireWriter{}
	w.hash(p.Voucher)
	w.hash(p.Vouchee)
	w.byte(uint8(p.KeyType))
	return w.bytesOut()
}

func DecodeVouch(b []byte) (VouchPayload, error) {
	r := newWireReader(b)
	var p VouchPayload
	var err error
	if p.Voucher, err = r.hash(); err != nil {
		return p, err
	}
	if p.Vouchee, err = r.hash(); err != nil {
		return p, err
	}
	kt, err := r.byte()
	if err != nil {
		return p, err
	}
	p.KeyType = KeyType(kt)
	return p, nil
}

// PowSolutionPayload records a submitted proof-of-work solution.
type PowSolutionPayload struct {
	Epoch      uint64
	Nonce      []byte
	Difficulty uint32
}

func (p PowSolutionPayload) Encode() []byte {
	w := &wireWriter{}
	w.u64(p.Epoch)
	w.bytes(p.Nonce)
	w.u32(p.Difficulty)
	return w.bytesOut()
}

func DecodePowSolution(b []byte) (PowSolutionPayload, error) {
	r := newWireReader(b)
	var p PowSolutionPayload
	var err error
	if p.Epoch, err = r.u64(); err != nil {
		return p, err
	}
	if p.Nonce, err = r.bytes(); err != nil {
		return p, err
	}
	if p.Difficulty, err = r.u32(); err != nil {
		return p, err
	}
	return p, nil
}

// PostakeContributionPayload records a proof-of-contribution metric bump.
type PostakeContributionPayload struct {
	Kind   string
	Amount uint64
}

func (p PostakeContributionPayload) Encode() []byte {
	w := &wireWriter{}
	w.str(p.Kind)
	w.u64(p.Amount)
	return w.bytesOut()
}

func DecodePostakeContribution(b []byte) (PostakeContributionPayload, error) {
	r := newWireReader(b)
	var p PostakeContributionPayload
	var err error
	if p.Kind, err = r.str(); err != nil {
		return p, err
	}
	if p.Amount, err = r.u64(); err != nil {
		return p, err
	}
	return p, nil
}

// IdentityCreatedPayload binds a HumanID to a NodeID with its public key,
// per SPEC_FULL.md §C.2.
type IdentityCreatedPayload struct {
	HumanID   crypto.Hash
	PublicKey []byte
	Label     string
}

func (p IdentityCreatedPayload) Encode() []byte {
	w := &wireWriter{}
	w.hash(p.HumanID)
	w.bytes(p.PublicKey)
	w.str(p.Label)
	return w.bytesOut()
}

func DecodeIdentityCreated(b []byte) (IdentityCreatedPayload, error) {
	r := newWireReader(b)
	var p IdentityCreatedPayload
	var err error
	if p.HumanID, err = r.hash(); err != nil {
		return p, err
	}
	if p.PublicKey, err = r.bytes(); err != nil {
		return p, err
	}
	if p.Label, err = r.str(); err != nil {
		return p, err
	}
	return p, nil
}

// IdentityRotatedPayload records a node rotating its signing key while
// retaining the same HumanID binding.
type IdentityRotatedPayload struct {
	HumanID      crypto.Hash
	NewNodeID    NodeID
	NewPublicKey []byte
}

func (p IdentityRotatedPayload) Encode() []byte {
	w := &wireWriter{}
	w.hash(p.HumanID)
	w.hash(p.NewNodeID)
	w.bytes(p.NewPublicKey)
	return w.bytesOut()
}

func DecodeIdentityRotated(b []byte) (IdentityRotatedPayload, error) {
	r := newWireReader(b)
	var p IdentityRotatedPayload
	var err error
	if p.HumanID, err = r.hash(); err != nil {
		return p, err
	}
	if p.NewNodeID, err = r.hash(); err != nil {
		return p, err
	}
	if p.NewPublicKey, err = r.bytes(); err != nil {
		return p, err
	}
	return p, nil
}

// IdentityRevokedPayload records revocation of a HumanID/NodeID binding.
type IdentityRevokedPayload struct {
	HumanID crypto.Hash
	Reason  string
}

func (p IdentityRevokedPayload) Encode() []byte {
	w := &wireWriter{}
	w.hash(p.HumanID)
	w.str(p.Reason)
	return w.bytesOut()
}

func DecodeIdentityRevoked(b []byte) (IdentityRevokedPayload, error) {
	r := newWireReader(b)
	var p IdentityRevokedPayload
	var err error
	if p.HumanID, err = r.hash(); err != nil {
		return p, err
	}
	if p.Reason, err = r.str(); err != nil {
		return p, err
	}
	return p, nil
}
