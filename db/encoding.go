package db

import (
	"encoding/binary"
	"fmt"

	"github.com/nomad-xyz/agents/core"
)

// byteOrder is fixed big-endian across the store, matching the wire
// encodings in core and giving lexicographically sortable keys for the
// leaf_ and proof_ namespaces.
var byteOrder = binary.BigEndian

func u32Key(v uint32) []byte {
	buf := make([]byte, 4)
	byteOrder.PutUint32(buf, v)
	return buf
}

func u64Key(v uint64) []byte {
	buf := make([]byte, 8)
	byteOrder.PutUint64(buf, v)
	return buf
}

// encodeSignedUpdate serializes a SignedUpdate as home_domain(4) ||
// previous_root(32) || new_root(32) || signature(65).
func encodeSignedUpdate(su core.SignedUpdate) []byte {
	buf := make([]byte, 0, 4+32+32+65)
	buf = append(buf, u32Key(uint32(su.Update.HomeDomain))...)
	buf = append(buf, su.Update.PreviousRoot[:]...)
	buf = append(buf, su.Update.NewRoot[:]...)
	buf = append(buf, su.Signature[:]...)
	return buf
}

func decodeSignedUpdate(raw []byte) (core.SignedUpdate, error) {
	const want = 4 + 32 + 32 + 65
	if len(raw) != want {
		return core.SignedUpdate{}, fmt.Errorf("db: corrupt signed update: want %d bytes, got %d", want, len(raw))
	}
	var su core.SignedUpdate
	su.Update.HomeDomain = core.Domain(byteOrder.Uint32(raw[0:4]))
	copy(su.Update.PreviousRoot[:], raw[4:36])
	copy(su.Update.NewRoot[:], raw[36:68])
	copy(su.Signature[:], raw[68:133])
	return su, nil
}

// encodeMeta serializes a Meta as block_number(8) || timestamp(8).
func encodeMeta(m core.Meta) []byte {
	buf := make([]byte, 16)
	byteOrder.PutUint64(buf[0:8], m.BlockNumber)
	byteOrder.PutUint64(buf[8:16], m.Timestamp)
	return buf
}

func decodeMeta(raw []byte) (core.Meta, error) {
	if len(raw) != 16 {
		return core.Meta{}, fmt.Errorf("db: corrupt update metadata: want 16 bytes, got %d", len(raw))
	}
	return core.Meta{
		BlockNumber: byteOrder.Uint64(raw[0:8]),
		Timestamp:   byteOrder.Uint64(raw[8:16]),
	}, nil
}

// encodeProof serializes a MerkleProof as leaf(32) || index(4) || path(32*32).
func encodeProof(p core.MerkleProof) []byte {
	buf := make([]byte, 0, 32+4+32*32)
	buf = append(buf, p.Leaf[:]...)
	buf = append(buf, u32Key(p.Index)...)
	for _, node := range p.Path {
		buf = append(buf, node[:]...)
	}
	return buf
}

func decodeProof(raw []byte) (core.MerkleProof, error) {
	const want = 32 + 4 + 32*32
	if len(raw) != want {
		return core.MerkleProof{}, fmt.Errorf("db: corrupt merkle proof: want %d bytes, got %d", want, len(raw))
	}
	var p core.MerkleProof
	copy(p.Leaf[:], raw[0:32])
	p.Index = byteOrder.Uint32(raw[32:36])
	for i := 0; i < 32; i++ {
		copy(p.Path[i][:], raw[36+i*32:36+(i+1)*32])
	}
	return p, nil
}
