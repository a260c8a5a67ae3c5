package ir

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strconv"
)

// DomainIntegrity is the domain prefix for integrity hashes. The version
// suffix enables future algorithm migration.
const DomainIntegrity = "kiln/integrity/v1"

// hashWithDomain computes SHA256(domain || 0x00 || data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// IntegrityHash hashes the structural representation of a program before
// metadata is attached: runtime IR (data sections included), deploy IR and
// the immutables length.
func IntegrityHash(runtime, deploy *Node, immutablesLen uint64) ([32]byte, error) {
	rt, err := canonicalize(runtime)
	if err != nil {
		return [32]byte{}, fmt.Errorf("IntegrityHash: runtime: %w", err)
	}
	dp, err := canonicalize(deploy)
	if err != nil {
		return [32]byte{}, fmt.Errorf("IntegrityHash: deploy: %w", err)
	}
	obj := canonObject{
		"runtime":           rt,
		"deploy":            dp,
		"immutables_length": canonInt(strconv.FormatUint(immutablesLen, 10)),
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, obj); err != nil {
		return [32]byte{}, fmt.Errorf("IntegrityHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainIntegrity, buf.Bytes()), nil
}

// MustIntegrityHash is like IntegrityHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustIntegrityHash(runtime, deploy *Node, immutablesLen uint64) [32]byte {
	h, err := IntegrityHash(runtime, deploy, immutablesLen)
	if err != nil {
		panic(err)
	}
	return h
}
