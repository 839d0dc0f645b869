// Package db implements the indexed store: a chain-agnostic keyed view
// over bbolt mapping committed merkle roots to signed updates, leaves to
// messages, and leaf-indices to merkle proofs. Every exported method
// enforces one of invariants I1-I5 at the point of the write; see
// CheckCoreIntegrity, storeLatestUpdate, and storeLatestLeafIndex for the
// write-once and monotonic-append rules.
//
// The bucket layout follows the original prefixed-key schema: each prefix
// becomes its own bbolt bucket, so the derived key/value shape does not
// need a string-concatenation prefix at all -- bbolt already partitions the
// keyspace. The one split is leaf_, whose dest_and_nonce keys live in a
// separate leaf_dest_nonce_ bucket.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/btcsuite/btclog"
	bolt "go.etcd.io/bbolt"

	"github.com/nomad-xyz/agents/core"
)

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by db.
func UseLogger(logger btclog.Logger) {
	log = logger
}

var (
	leafBucket             = []byte("leaf_")
	leafByDestNonceBucket  = []byte("leaf_dest_nonce_")
	messageBucket          = []byte("message_")
	latestLeafIndexBucket  = []byte("latest_leaf_index_")
	updateBucket           = []byte("update_")
	updatePrevRootBucket   = []byte("update_prev_root_")
	updateMetadataBucket   = []byte("update_metadata_")
	updateLatestRootBucket = []byte("update_latest_root_")
	proofBucket            = []byte("proof_")
	processorAttemptBucket = []byte("processor_attempted_")
	coreIntegrityBucket    = []byte("core_integrity_")
)

var allBuckets = [][]byte{
	leafBucket, leafByDestNonceBucket, messageBucket, latestLeafIndexBucket,
	updateBucket, updatePrevRootBucket, updateMetadataBucket, updateLatestRootBucket,
	proofBucket, processorAttemptBucket, coreIntegrityBucket,
}

// scalarKey is the sole key written into a bucket that holds a single
// process-wide scalar (latest_leaf_index_, update_latest_root_).
var scalarKey = []byte("_")

// Store is the indexed store. One Store is opened per agent process and
// shared, via an immutable handle, by every task that reads or writes it.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt file at path and ensures
// every bucket in the schema exists.
func Open(path string) (*Store, error) {
	bdb, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = bdb.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, err
	}
	return &Store{db: bdb}, nil
}

// Close releases the underlying bbolt file.
func (s *Store) Close() error {
	return s.db.Close()
}

// StoreRawCommittedMessage ingests a raw committed message: it writes the
// leaf hash under both leaf_ ‖ leaf_index and leaf_dest_nonce_ ‖
// dest_and_nonce, writes the raw message under message_ ‖ leaf, and advances
// latest_leaf_index_ through storeLatestLeafIndex, which enforces I3.
func (s *Store) StoreRawCommittedMessage(raw core.RawCommittedMessage) error {
	msg, err := core.DecodeMessage(raw.Message)
	if err != nil {
		return err
	}
	leaf := core.HashLeaf(msg)

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(leafBucket).Put(u32Key(raw.LeafIndex), leaf[:]); err != nil {
			return err
		}
		if err := tx.Bucket(leafByDestNonceBucket).Put(u64Key(msg.DestinationAndNonce()), leaf[:]); err != nil {
			return err
		}
		if err := tx.Bucket(messageBucket).Put(leaf[:], raw.Message); err != nil {
			return err
		}
		return s.storeLatestLeafIndex(tx, raw.LeafIndex)
	})
}

// storeLatestLeafIndex enforces I3: a new leaf index is only accepted when
// it equals latest+1, or when the store is empty and it is 0. Out-of-order
// indices are logged at debug and otherwise ignored -- the leaf_ and
// message_ entries above are still written, matching store_latest_message's
// partial-write behavior for historical backfill.
func (s *Store) storeLatestLeafIndex(tx *bolt.Tx, idx uint32) error {
	b := tx.Bucket(latestLeafIndexBucket)
	cur := b.Get(scalarKey)
	if cur == nil {
		if idx != 0 {
			log.Debugf("not extending latest leaf index: store empty, got index %d instead of 0", idx)
			return nil
		}
		return b.Put(scalarKey, u32Key(0))
	}
	latest := byteOrder.Uint32(cur)
	if idx != latest+1 {
		log.Debugf("not extending latest leaf index: have %d, got %d", latest, idx)
		return nil
	}
	return b.Put(scalarKey, u32Key(idx))
}

// RetrieveLatestLeafIndex returns the highest contiguously stored leaf
// index, and false if none has been stored yet.
func (s *Store) RetrieveLatestLeafIndex() (uint32, bool, error) {
	var idx uint32
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(latestLeafIndexBucket).Get(scalarKey)
		if raw == nil {
			return nil
		}
		idx = byteOrder.Uint32(raw)
		ok = true
		return nil
	})
	return idx, ok, err
}

// LeafByLeafIndex returns the leaf hash stored at a given leaf index.
func (s *Store) LeafByLeafIndex(idx uint32) (core.Leaf, bool, error) {
	var out core.Leaf
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(leafBucket).Get(u32Key(idx))
		if raw == nil {
			return nil
		}
		copy(out[:], raw)
		ok = true
		return nil
	})
	return out, ok, err
}

// LeafByDestinationAndNonce returns the leaf hash stored for a given
// (destination, nonce) pair.
func (s *Store) LeafByDestinationAndNonce(destAndNonce uint64) (core.Leaf, bool, error) {
	var out core.Leaf
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(leafByDestNonceBucket).Get(u64Key(destAndNonce))
		if raw == nil {
			return nil
		}
		copy(out[:], raw)
		ok = true
		return nil
	})
	return out, ok, err
}

// MessageByLeaf returns the raw message bytes stored for a leaf.
func (s *Store) MessageByLeaf(leaf core.Leaf) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(messageBucket).Get(leaf[:])
		if raw == nil {
			return nil
		}
		out = append([]byte(nil), raw...)
		return nil
	})
	return out, out != nil, err
}

// MessageByNonce returns the raw message bytes for a (destination, nonce)
// pair, joining through the secondary leaf index.
func (s *Store) MessageByNonce(destAndNonce uint64) ([]byte, bool, error) {
	leaf, ok, err := s.LeafByDestinationAndNonce(destAndNonce)
	if err != nil || !ok {
		return nil, false, err
	}
	return s.MessageByLeaf(leaf)
}

// MessageByLeafIndex returns the raw message bytes for a leaf index,
// joining through the primary leaf index.
func (s *Store) MessageByLeafIndex(idx uint32) ([]byte, bool, error) {
	leaf, ok, err := s.LeafByLeafIndex(idx)
	if err != nil || !ok {
		return nil, false, err
	}
	return s.MessageByLeaf(leaf)
}

// StoreUpdatesAndMeta ingests a SignedUpdateWithMeta: it writes the I1
// mapping via storeUpdate, writes the update's metadata keyed by new root,
// and extends the latest-root pointer via storeLatestUpdate (I4).
func (s *Store) StoreUpdatesAndMeta(swm core.SignedUpdateWithMeta) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := s.storeUpdate(tx, swm.SignedUpdate); err != nil {
			return err
		}
		if err := tx.Bucket(updateMetadataBucket).Put(
			swm.SignedUpdate.Update.NewRoot[:], encodeMeta(swm.Meta),
		); err != nil {
			return err
		}
		return s.storeLatestUpdate(tx, swm.SignedUpdate.Update)
	})
}

// storeUpdate enforces I1: update_ ‖ previous_root = U and
// update_prev_root_ ‖ new_root = previous_root.
func (s *Store) storeUpdate(tx *bolt.Tx, su core.SignedUpdate) error {
	if err := tx.Bucket(updateBucket).Put(su.Update.PreviousRoot[:], encodeSignedUpdate(su)); err != nil {
		return err
	}
	return tx.Bucket(updatePrevRootBucket).Put(su.Update.NewRoot[:], su.Update.PreviousRoot[:])
}

// StoreUpdate writes only the I1 mapping for su, without touching its
// metadata or the latest-root pointer. The fraud detector's
// check_double_update uses this directly: it stores the first update it
// sees extending a given previous root without yet knowing (or needing)
// that update's block metadata.
func (s *Store) StoreUpdate(su core.SignedUpdate) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return s.storeUpdate(tx, su)
	})
}

// storeLatestUpdate enforces I4: a new latest root may only be written when
// its previous root equals the current latest root, or when none exists
// yet. Otherwise this is historical/out-of-order ingestion: the per-root
// mapping above has already been written by storeUpdate, and the latest
// pointer is left alone, logged at debug.
func (s *Store) storeLatestUpdate(tx *bolt.Tx, u core.Update) error {
	b := tx.Bucket(updateLatestRootBucket)
	cur := b.Get(scalarKey)
	if cur == nil {
		return b.Put(scalarKey, u.NewRoot[:])
	}
	var curRoot core.Root
	copy(curRoot[:], cur)
	if u.PreviousRoot != curRoot {
		log.Debugf("not extending latest update: latest root %s, update previous root %s", curRoot, u.PreviousRoot)
		return nil
	}
	return b.Put(scalarKey, u.NewRoot[:])
}

// RetrieveLatestRoot returns the current latest new_root, and false if no
// update has been stored yet.
func (s *Store) RetrieveLatestRoot() (core.Root, bool, error) {
	var out core.Root
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(updateLatestRootBucket).Get(scalarKey)
		if raw == nil {
			return nil
		}
		copy(out[:], raw)
		ok = true
		return nil
	})
	return out, ok, err
}

// UpdateByPreviousRoot returns the signed update stored at update_ ‖
// previousRoot.
func (s *Store) UpdateByPreviousRoot(previousRoot core.Root) (core.SignedUpdate, bool, error) {
	var out core.SignedUpdate
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(updateBucket).Get(previousRoot[:])
		if raw == nil {
			return nil
		}
		var err error
		out, err = decodeSignedUpdate(raw)
		ok = err == nil
		return err
	})
	return out, ok, err
}

// UpdateByNewRoot joins update_prev_root_ and update_ to return the signed
// update whose new_root is newRoot.
func (s *Store) UpdateByNewRoot(newRoot core.Root) (core.SignedUpdate, bool, error) {
	var prevRoot core.Root
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(updatePrevRootBucket).Get(newRoot[:])
		if raw == nil {
			return nil
		}
		copy(prevRoot[:], raw)
		found = true
		return nil
	})
	if err != nil || !found {
		return core.SignedUpdate{}, false, err
	}
	return s.UpdateByPreviousRoot(prevRoot)
}

// RetrieveUpdateMetadata returns the Meta stored for an update keyed by its
// new root.
func (s *Store) RetrieveUpdateMetadata(newRoot core.Root) (core.Meta, bool, error) {
	var out core.Meta
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(updateMetadataBucket).Get(newRoot[:])
		if raw == nil {
			return nil
		}
		var err error
		out, err = decodeMeta(raw)
		ok = err == nil
		return err
	})
	return out, ok, err
}

// StoreProof stores a merkle proof keyed by leaf index.
func (s *Store) StoreProof(p core.MerkleProof) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(proofBucket).Put(u32Key(p.Index), encodeProof(p))
	})
}

// ProofByLeafIndex returns the stored merkle proof for a leaf index.
func (s *Store) ProofByLeafIndex(idx uint32) (core.MerkleProof, bool, error) {
	var out core.MerkleProof
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(proofBucket).Get(u32Key(idx))
		if raw == nil {
			return nil
		}
		var err error
		out, err = decodeProof(raw)
		ok = err == nil
		return err
	})
	return out, ok, err
}

// WaitForLeaf polls leaf_ ‖ idx every 100ms until it is present or ctx is
// done. Callers supply their own cancellation via ctx.
func (s *Store) WaitForLeaf(ctx context.Context, idx uint32) (core.Leaf, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		leaf, ok, err := s.LeafByLeafIndex(idx)
		if err != nil {
			return core.Leaf{}, err
		}
		if ok {
			return leaf, nil
		}
		select {
		case <-ctx.Done():
			return core.Leaf{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SetPreviouslyAttempted records that the processor has attempted to
// process the message at leaf at least once.
func (s *Store) SetPreviouslyAttempted(leaf core.Leaf) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(processorAttemptBucket).Put(leaf[:], []byte{1})
	})
}

// PreviouslyAttempted reports whether the processor has attempted leaf
// before.
func (s *Store) PreviouslyAttempted(leaf core.Leaf) (bool, error) {
	var attempted bool
	err := s.db.View(func(tx *bolt.Tx) error {
		attempted = tx.Bucket(processorAttemptBucket).Get(leaf[:]) != nil
		return nil
	})
	return attempted, err
}

// ErrIntegrityMismatch is returned by CheckCoreIntegrity when the stored
// deployment disagrees with the one presented now.
var ErrIntegrityMismatch = errors.New("db: core integrity mismatch")

// CheckCoreIntegrity is write-once-compare (I5): the first call for a given
// name stores the JSON encoding of core; every subsequent call compares the
// stored JSON to core's JSON encoding and fails loudly on any difference.
// This catches silent substitution of a deployment's contract addresses.
func (s *Store) CheckCoreIntegrity(name string, core interface{}) error {
	encoded, err := json.Marshal(core)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(coreIntegrityBucket)
		stored := b.Get([]byte(name))
		if stored == nil {
			return b.Put([]byte(name), encoded)
		}
		if !jsonEqual(stored, encoded) {
			return ErrIntegrityMismatch
		}
		return nil
	})
}

// jsonEqual compares two JSON documents for semantic equality by
// round-tripping through a generic interface{}, matching the original's
// "set-equal as JSON" comparison rather than a literal byte comparison.
func jsonEqual(a, b []byte) bool {
	var av, bv interface{}
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return string(a) == string(b)
	}
	aj, _ := json.Marshal(av)
	bj, _ := json.Marshal(bv)
	return string(aj) == string(bj)
}
