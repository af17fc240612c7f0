// Package ledger implements Cashew's signed, hash-chained, content-addressed
// event log (component C3): the append-only source of truth every other
// subsystem folds into its derived state.
package ledger

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"cashew/internal/crypto"
)

// EpochDuration is the wall-clock width of one epoch, per spec §6.5.
const EpochDuration = 600 * time.Second

// ClockSkewTolerance is the maximum permitted drift between an externally
// gossiped event's timestamp and the local clock, per spec §4.1/§9.
const ClockSkewTolerance = 5 * time.Minute

// NodeID, ContentHash, NetworkID, HumanID are all 32-byte BLAKE3 digests.
type NodeID = crypto.Hash

// EventType enumerates the fixed on-wire event type tags of spec §6.1.
type EventType uint8

const (
	NodeJoined                EventType = 1
	NodeLeft                  EventType = 2
	KeyIssued                 EventType = 10
	KeyTransferred            EventType = 11
	KeyRevoked                EventType = 12
	KeyDecayed                EventType = 13
	NetworkCreated            EventType = 20
	NetworkInvitationSent     EventType = 21
	NetworkInvitationAccepted EventType = 22
	NetworkMemberAdded        EventType = 23
	NetworkMemberRemoved      EventType = 24
	NetworkDisbanded          EventType = 25
	ThingCreated              EventType = 30
	ThingReplicated           EventType = 31
	ThingRemoved              EventType = 32
	ReputationUpdated         EventType = 40
	AttestationCreated        EventType = 41
	VouchCreated              EventType = 42
	PowSolutionSubmitted      EventType = 50
	PostakeContribution       EventType = 51
	IdentityCreated           EventType = 60
	IdentityRotated           EventType = 61
	IdentityRevoked           EventType = 62
)

func (t EventType) String() string {
	switch t {
	case NodeJoined:
		return "NODE_JOINED"
	case NodeLeft:
		return "NODE_LEFT"
	case KeyIssued:
		return "KEY_ISSUED"
	case KeyTransferred:
		return "KEY_TRANSFERRED"
	case KeyRevoked:
		return "KEY_REVOKED"
	case KeyDecayed:
		return "KEY_DECAYED"
	case NetworkCreated:
		return "NETWORK_CREATED"
	case NetworkInvitationSent:
		return "NETWORK_INVITATION_SENT"
	case NetworkInvitationAccepted:
		return "NETWORK_INVITATION_ACCEPTED"
	case NetworkMemberAdded:
		return "NETWORK_MEMBER_ADDED"
	case NetworkMemberRemoved:
		return "NETWORK_MEMBER_REMOVED"
	case NetworkDisbanded:
		return "NETWORK_DISBANDED"
	case ThingCreated:
		return "THING_CREATED"
	case ThingReplicated:
		return "THING_REPLICATED"
	case ThingRemoved:
		return "THING_REMOVED"
	case ReputationUpdated:
		return "REPUTATION_UPDATED"
	case AttestationCreated:
		return "ATTESTATION_CREATED"
	case VouchCreated:
		return "VOUCH_CREATED"
	case PowSolutionSubmitted:
		return "POW_SOLUTION_SUBMITTED"
	case PostakeContribution:
		return "POSTAKE_CONTRIBUTION"
	case IdentityCreated:
		return "IDENTITY_CREATED"
	case IdentityRotated:
		return "IDENTITY_ROTATED"
	case IdentityRevoked:
		return "IDENTITY_REVOKED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// Event is one signed, hash-chained fact in a source node's log.
//
// EventID == BLAKE3(concat(all fields except EventID and Signature)), and
// Signature must verify under SourceNode's declared Ed25519 public key.
// Events are immutable once created.
type Event struct {
	EventID      crypto.Hash
	Type         EventType
	SourceNode   NodeID
	Timestamp    int64 // unix seconds
	Epoch        uint64
	PreviousHash crypto.Hash
	Payload      []byte
	Signature    [ed25519.SignatureSize]byte
}

// EpochOf converts a unix-second timestamp into its 600s epoch bucket.
func EpochOf(unixSeconds int64) uint64 {
	if unixSeconds < 0 {
		return 0
	}
	return uint64(unixSeconds) / uint64(EpochDuration/time.Second)
}

// ErrKind enumerates the append_external failure categories of spec §4.1.
type ErrKind int

const (
	ErrNone ErrKind = iota
	ErrInvalidSignature
	ErrChainBreak
	ErrClockSkew
	ErrDuplicate
)

func (k ErrKind) String() string {
	switch k {
	case ErrInvalidSignature:
		return "InvalidSignature"
	case ErrChainBreak:
		return "ChainBreak"
	case ErrClockSkew:
		return "ClockSkew"
	case ErrDuplicate:
		return "Duplicate"
	default:
		return "None"
	}
}

// AppendError wraps an ErrKind with contextual detail.
type AppendError struct {
	Kind ErrKind
	Msg  string
}

func (e *AppendError) Error() string { return fmt.Sprintf("ledger: %s: %s", e.Kind, e.Msg) }

func newAppendErr(kind ErrKind, format string, args ...interface{}) *AppendError {
	return &AppendError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
