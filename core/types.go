// Package core defines the wire types shared by every Nomad agent: the
// signed update, the double-update and failure-notification types, the
// committed-message/leaf/proof types, and the encodings used to hash and
// sign them.
package core

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Domain identifies a chain in the Nomad protocol's own numbering, distinct
// from the chain's native chain ID.
type Domain uint32

// Root is a 32-byte merkle root (or, for the implicit initial update, the
// zero root).
type Root [32]byte

// IsZero reports whether r is the implicit initial root.
func (r Root) IsZero() bool {
	return r == Root{}
}

func (r Root) String() string {
	return common.Hash(r).String()
}

// Update is the unsigned core of a signed update: a home domain extending
// its committed root from previous_root to new_root.
type Update struct {
	HomeDomain   Domain
	PreviousRoot Root
	NewRoot      Root
}

// SigningMessage returns "Nomad" || be_u32(home_domain) || previous_root ||
// new_root, unhashed; its keccak256 is the exact digest an updater signs.
func (u Update) SigningMessage() []byte {
	buf := make([]byte, 0, 5+32+32)
	buf = append(buf, 'N', 'o', 'm', 'a', 'd')
	var domainBuf [4]byte
	binary.BigEndian.PutUint32(domainBuf[:], uint32(u.HomeDomain))
	buf = append(buf, domainBuf[:]...)
	buf = append(buf, u.PreviousRoot[:]...)
	buf = append(buf, u.NewRoot[:]...)
	return buf
}

// Signature is a 65-byte secp256k1 signature in (r, s, v) layout.
type Signature [65]byte

// SignedUpdate pairs an Update with the updater's signature over its
// SigningMessage digest.
type SignedUpdate struct {
	Update    Update
	Signature Signature
}

// Meta carries the block and timestamp an on-chain event was observed at.
// Timestamp is zero when the indexer could not recover it.
type Meta struct {
	BlockNumber uint64
	Timestamp   uint64
}

// SignedUpdateWithMeta is a SignedUpdate as observed on chain, immutable
// once indexed.
type SignedUpdateWithMeta struct {
	SignedUpdate SignedUpdate
	Meta         Meta
}

// DoubleUpdate is an ordered pair of signed updates that both extend the
// same previous root, signed by the same recovered signer, with differing
// new roots.
type DoubleUpdate struct {
	First  SignedUpdate
	Second SignedUpdate
}

func (d DoubleUpdate) Error() string {
	return fmt.Sprintf(
		"double update detected: home=%d prev=%s first_new=%s second_new=%s",
		d.First.Update.HomeDomain, d.First.Update.PreviousRoot,
		d.First.Update.NewRoot, d.Second.Update.NewRoot,
	)
}

// Address is a 20-byte chain address, used both for the updater and for the
// watcher's own attestation key.
type Address [20]byte

func (a Address) String() string {
	return common.BytesToAddress(a[:]).String()
}

// FailureNotification is signed by a watcher's attestation key and
// broadcast to every connection manager when a fault is detected.
type FailureNotification struct {
	HomeDomain Domain
	Updater    Address
}

// SigningMessage returns be_u32(home_domain) || pad20(updater), unhashed;
// its keccak256 is the digest a watcher signs to produce a
// SignedFailureNotification.
func (f FailureNotification) SigningMessage() []byte {
	buf := make([]byte, 0, 4+20)
	var domainBuf [4]byte
	binary.BigEndian.PutUint32(domainBuf[:], uint32(f.HomeDomain))
	buf = append(buf, domainBuf[:]...)
	buf = append(buf, f.Updater[:]...)
	return buf
}

// SignedFailureNotification is a FailureNotification plus the watcher's
// signature over its SigningMessage digest.
type SignedFailureNotification struct {
	Notification FailureNotification
	Signature    Signature
}

// Message is the payload dispatched by a home and, eventually, processed by
// a replica.
type Message struct {
	Origin      Domain
	Sender      [32]byte
	Nonce       uint32
	Destination Domain
	Recipient   [32]byte
	Body        []byte
}

// DestinationAndNonce packs destination and nonce into the u64 key used for
// the secondary leaf_ index.
func (m Message) DestinationAndNonce() uint64 {
	return uint64(m.Destination)<<32 | uint64(m.Nonce)
}

// Encode returns be_u32(origin) || sender:32 || be_u32(nonce) ||
// be_u32(destination) || recipient:32 || body, the canonical message
// encoding whose keccak256 is the leaf.
func (m Message) Encode() []byte {
	buf := make([]byte, 0, 4+32+4+4+32+len(m.Body))
	var b4 [4]byte
	binary.BigEndian.PutUint32(b4[:], uint32(m.Origin))
	buf = append(buf, b4[:]...)
	buf = append(buf, m.Sender[:]...)
	binary.BigEndian.PutUint32(b4[:], m.Nonce)
	buf = append(buf, b4[:]...)
	binary.BigEndian.PutUint32(b4[:], uint32(m.Destination))
	buf = append(buf, b4[:]...)
	buf = append(buf, m.Recipient[:]...)
	buf = append(buf, m.Body...)
	return buf
}

// DecodeMessage parses the canonical message encoding produced by Encode.
func DecodeMessage(raw []byte) (Message, error) {
	const headerLen = 4 + 32 + 4 + 4 + 32
	if len(raw) < headerLen {
		return Message{}, fmt.Errorf("core: message too short: %d bytes", len(raw))
	}
	var m Message
	m.Origin = Domain(binary.BigEndian.Uint32(raw[0:4]))
	copy(m.Sender[:], raw[4:36])
	m.Nonce = binary.BigEndian.Uint32(raw[36:40])
	m.Destination = Domain(binary.BigEndian.Uint32(raw[40:44]))
	copy(m.Recipient[:], raw[44:76])
	m.Body = append([]byte(nil), raw[76:]...)
	return m, nil
}

// Leaf is the keccak256 of a message's canonical encoding.
type Leaf [32]byte

// RawCommittedMessage is a message together with the leaf index and root it
// was committed under, as observed by the indexer. BlockNumber is an
// indexer-level field (the block the dispatch event was logged in); the
// store's message_ namespace does not persist it, since §3's schema keys
// message_ solely by leaf, but the observer pipeline's producers need it
// to compute inter-event latency directly off the indexer stream.
type RawCommittedMessage struct {
	LeafIndex     uint32
	CommittedRoot Root
	Message       []byte
	BlockNumber   uint64
}

// MerkleProof is an inclusion proof for a single leaf against a 32-deep
// sparse merkle tree.
type MerkleProof struct {
	Leaf  Leaf
	Index uint32
	Path  [32][32]byte
}

// MessageStatus is a replica-local view of a message's lifecycle.
type MessageStatus int

const (
	MessageStatusNone MessageStatus = iota
	MessageStatusProven
	MessageStatusProcessed
)

func (s MessageStatus) String() string {
	switch s {
	case MessageStatusProven:
		return "Proven"
	case MessageStatusProcessed:
		return "Processed"
	default:
		return "None"
	}
}

// ChainState is the lifecycle state of a home or replica contract.
type ChainState int

const (
	ChainStateUninitialized ChainState = iota
	ChainStateActive
	ChainStateFailed
)

func (s ChainState) String() string {
	switch s {
	case ChainStateActive:
		return "Active"
	case ChainStateFailed:
		return "Failed"
	default:
		return "Uninitialized"
	}
}

// ChainFamily is the closed set of chain families a chain abstraction may
// belong to. New families are added here, not via an open interface
// hierarchy, because the set is finite and known at build time.
type ChainFamily int

const (
	ChainFamilyEthereum ChainFamily = iota
	ChainFamilySubstrate
)

func (f ChainFamily) String() string {
	switch f {
	case ChainFamilyEthereum:
		return "ethereum"
	case ChainFamilySubstrate:
		return "substrate"
	default:
		return "unknown"
	}
}
