package core

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/crypto"
)

// SignUpdate signs u with key and returns the resulting SignedUpdate. The
// digest signed is keccak256(u.SigningMessage()), matching the updater's
// on-chain signing convention.
func SignUpdate(key *ecdsa.PrivateKey, u Update) (SignedUpdate, error) {
	sig, err := sign(key, u.SigningMessage())
	if err != nil {
		return SignedUpdate{}, err
	}
	return SignedUpdate{Update: u, Signature: sig}, nil
}

// Signer recovers the address that produced su.Signature over
// su.Update.SigningMessage(). An error here means the signature bytes do
// not recover to any address; per §7 this happens only for deliberately
// unverifiable test fixtures or on-chain corruption, never for a signature
// this package produced itself.
func (su SignedUpdate) Signer() (Address, error) {
	return recoverSigner(su.Update.SigningMessage(), su.Signature)
}

// SignFailureNotification signs f with key and returns the resulting
// SignedFailureNotification.
func SignFailureNotification(key *ecdsa.PrivateKey, f FailureNotification) (SignedFailureNotification, error) {
	sig, err := sign(key, f.SigningMessage())
	if err != nil {
		return SignedFailureNotification{}, err
	}
	return SignedFailureNotification{Notification: f, Signature: sig}, nil
}

// Signer recovers the address that produced sf.Signature.
func (sf SignedFailureNotification) Signer() (Address, error) {
	return recoverSigner(sf.Notification.SigningMessage(), sf.Signature)
}

func sign(key *ecdsa.PrivateKey, message []byte) (Signature, error) {
	digest := crypto.Keccak256(message)
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return Signature{}, err
	}
	var out Signature
	copy(out[:], sig)
	return out, nil
}

func recoverSigner(message []byte, sig Signature) (Address, error) {
	digest := crypto.Keccak256(message)
	pub, err := crypto.SigToPub(digest, sig[:])
	if err != nil {
		return Address{}, err
	}
	addr := crypto.PubkeyToAddress(*pub)
	var out Address
	copy(out[:], addr[:])
	return out, nil
}

// HashLeaf returns keccak256 of a message's canonical encoding.
func HashLeaf(m Message) Leaf {
	return Leaf(crypto.Keccak256Hash(m.Encode()))
}
