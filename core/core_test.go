package core

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func mustKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

// P6: encode(message).decode == message, leaf(message) == keccak256(encode(message)).
func TestMessageRoundTrip(t *testing.T) {
	m := Message{
		Origin:      1,
		Nonce:       7,
		Destination: 2,
		Body:        []byte("hello nomad"),
	}
	copy(m.Sender[:], []byte("sender-32-bytes-padded-with-zz!"))
	copy(m.Recipient[:], []byte("recipient-32-bytes-padded-wzzz!"))

	encoded := m.Encode()
	decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)
	require.Equal(t, m, decoded)

	leaf := HashLeaf(m)
	want := crypto.Keccak256Hash(encoded)
	require.Equal(t, Leaf(want), leaf)
}

func TestDecodeMessageTooShort(t *testing.T) {
	_, err := DecodeMessage(make([]byte, 10))
	require.Error(t, err)
}

func TestSignAndRecoverUpdate(t *testing.T) {
	key := mustKey(t)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	u := Update{HomeDomain: 1, PreviousRoot: Root{0x11}, NewRoot: Root{0x22}}
	signed, err := SignUpdate(key, u)
	require.NoError(t, err)

	signer, err := signed.Signer()
	require.NoError(t, err)
	require.Equal(t, Address(addr), signer)
}

func TestSignAndRecoverFailureNotification(t *testing.T) {
	key := mustKey(t)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	f := FailureNotification{HomeDomain: 1, Updater: Address(addr)}
	signed, err := SignFailureNotification(key, f)
	require.NoError(t, err)

	signer, err := signed.Signer()
	require.NoError(t, err)
	require.Equal(t, Address(addr), signer)
}

func TestDifferentSignersRecoverDifferentAddresses(t *testing.T) {
	k1 := mustKey(t)
	k2 := mustKey(t)

	u := Update{HomeDomain: 1, PreviousRoot: Root{0x22}, NewRoot: Root{0x33}}
	s1, err := SignUpdate(k1, u)
	require.NoError(t, err)
	s2, err := SignUpdate(k2, u)
	require.NoError(t, err)

	a1, err := s1.Signer()
	require.NoError(t, err)
	a2, err := s2.Signer()
	require.NoError(t, err)
	require.NotEqual(t, a1, a2)
}
