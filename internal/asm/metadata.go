package asm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	// ErrNoMetadata is returned when bytecode does not end in a
	// well-formed metadata trailer.
	ErrNoMetadata = errors.New("no metadata trailer")

	// ErrMismatch is returned when deployed code does not match the
	// initcode it claims to come from.
	ErrMismatch = errors.New("deployed code does not match initcode")
)

// lengthSuffix is the size of the big-endian length that ends the trailer.
const lengthSuffix = 2

// Metadata is the trailer appended to initcode. It encodes as a CBOR array
// [integrity, runtime length, data section lengths, immutables length,
// {compiler: [major, minor, patch]}].
type Metadata struct {
	_ struct{} `cbor:",toarray"`

	Integrity          []byte
	RuntimeLength      uint64
	DataSectionLengths []uint64
	ImmutablesLength   uint64
	Compiler           map[string][3]uint64
}

// Compiler identifies the compiler that produced a build.
type Compiler struct {
	Name    string
	Version [3]uint64
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}).DecMode(); err != nil {
		panic(err)
	}
}

// Encode returns the CBOR container followed by its 2-byte length.
func (m *Metadata) Encode() ([]byte, error) {
	out := *m
	if out.DataSectionLengths == nil {
		out.DataSectionLengths = []uint64{}
	}
	body, err := encMode.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	if len(body) > 0xffff {
		return nil, fmt.Errorf("encode metadata: %d bytes do not fit the length suffix", len(body))
	}
	return binary.BigEndian.AppendUint16(body, uint16(len(body))), nil
}

// DecodeMetadata reads the metadata trailer at the end of initcode.
func DecodeMetadata(initcode []byte) (*Metadata, error) {
	if len(initcode) < lengthSuffix {
		return nil, ErrNoMetadata
	}
	n := int(binary.BigEndian.Uint16(initcode[len(initcode)-lengthSuffix:]))
	if n == 0 || n > len(initcode)-lengthSuffix {
		return nil, fmt.Errorf("%w: length %d", ErrNoMetadata, n)
	}
	body := initcode[len(initcode)-lengthSuffix-n : len(initcode)-lengthSuffix]
	var m Metadata
	if err := decMode.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMetadata, err)
	}
	if len(m.Integrity) != 32 {
		return nil, fmt.Errorf("%w: integrity hash is %d bytes", ErrNoMetadata, len(m.Integrity))
	}
	return &m, nil
}

// Verify checks that deployed is the runtime code carried by initcode
// followed by the immutables section it declares.
func Verify(initcode, deployed []byte) (*Metadata, error) {
	m, err := DecodeMetadata(initcode)
	if err != nil {
		return nil, err
	}
	want := m.RuntimeLength + m.ImmutablesLength
	if uint64(len(deployed)) != want {
		return nil, fmt.Errorf("%w: deployed %d bytes, metadata declares %d", ErrMismatch, len(deployed), want)
	}
	if !bytes.Contains(initcode, deployed[:m.RuntimeLength]) {
		return nil, fmt.Errorf("%w: runtime code not found in initcode", ErrMismatch)
	}
	return m, nil
}
