package core

import "fmt"

// ChainCommunicationError wraps an RPC-layer failure reaching a chain. Per
// the error taxonomy this is transient: the owning task fails and its
// supervisor decides whether to restart it.
type ChainCommunicationError struct {
	Chain string
	Err   error
}

func (e *ChainCommunicationError) Error() string {
	return fmt.Sprintf("chain communication error on %s: %v", e.Chain, e.Err)
}

func (e *ChainCommunicationError) Unwrap() error { return e.Err }

// TxRevertedError wraps a contract-layer revert, carrying the reverted
// transaction id for operator diagnosis.
type TxRevertedError struct {
	TxHash string
	Err    error
}

func (e *TxRevertedError) Error() string {
	return fmt.Sprintf("transaction %s reverted: %v", e.TxHash, e.Err)
}

func (e *TxRevertedError) Unwrap() error { return e.Err }

// FailedHomeError is returned when a home contract's state() transitions to
// Failed. It is fatal to the watching detector, which must respond and
// exit.
type FailedHomeError struct {
	HomeDomain Domain
}

func (e *FailedHomeError) Error() string {
	return fmt.Sprintf("home %d reported state Failed", e.HomeDomain)
}

// IntegrityError is returned by check_core_integrity when stored JSON
// disagrees with the current deployment configuration. Fatal at boot.
type IntegrityError struct {
	Name string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("core integrity mismatch for %q: stored deployment differs from configured one", e.Name)
}

// SyncExhaustedError is returned by HistorySync when it has walked back to
// the zero root. It signals normal termination of that task only, never a
// supervisor-level failure.
type SyncExhaustedError struct{}

func (e *SyncExhaustedError) Error() string { return "history sync exhausted: reached zero root" }

// MisconfiguredUpdaterError is returned when an update's recovered signer
// does not match the configured updater address. Fatal: the detector exits
// so the operator can investigate misconfiguration or an updater rotation.
type MisconfiguredUpdaterError struct {
	HomeDomain Domain
	Expected   Address
	Got        Address
}

func (e *MisconfiguredUpdaterError) Error() string {
	return fmt.Sprintf(
		"misconfigured or updater rotated on home %d: expected updater %s, signature recovered %s",
		e.HomeDomain, e.Expected, e.Got,
	)
}

// ChannelClosedError is returned when a required inbound channel is closed
// unexpectedly.
type ChannelClosedError struct {
	What string
}

func (e *ChannelClosedError) Error() string {
	return fmt.Sprintf("%s broke", e.What)
}

// InvalidSignatureFormatError marks a panic-worthy invariant break: the
// chain accepted an event this agent cannot parse as a 65-byte secp256k1
// signature.
type InvalidSignatureFormatError struct {
	Got int
}

func (e *InvalidSignatureFormatError) Error() string {
	return fmt.Sprintf("invalid signature format observed on chain: expected 65 bytes, got %d", e.Got)
}
