package ir

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRuntime() *Node {
	return Seq(
		With("m_0", New(OpShr, Int64(224), New(OpCalldataLoad, Int64(0))),
			If(New(OpEq, Var("m_0"), Int64(0x12345678)), Goto("f"), nil)),
		Label("f", New(OpStop)),
		Data("tbl", Bytes([]byte{1, 2, 3})),
	)
}

func sampleDeploy() *Node {
	return Seq(New(OpCodeCopy, Int64(0), Symbol("runtime_begin"), Int64(10)), New(OpReturn, Int64(0), Int64(10)))
}

func TestIntegrityHashDeterminism(t *testing.T) {
	h1, err := IntegrityHash(sampleRuntime(), sampleDeploy(), 0)
	require.NoError(t, err)
	h2, err := IntegrityHash(sampleRuntime(), sampleDeploy(), 0)
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "IntegrityHash must be deterministic")
}

func TestIntegrityHashChangesWithInput(t *testing.T) {
	base := MustIntegrityHash(sampleRuntime(), sampleDeploy(), 0)

	otherData := Seq(Label("f", New(OpStop)), Data("tbl", Bytes([]byte{1, 2, 4})))
	otherCode := Seq(Label("f", New(OpPass)), Data("tbl", Bytes([]byte{1, 2, 3})))

	assert.NotEqual(t, base, MustIntegrityHash(sampleRuntime(), sampleDeploy(), 32), "immutables layout")
	assert.NotEqual(t, base, MustIntegrityHash(otherData, sampleDeploy(), 0), "data section")
	assert.NotEqual(t, base, MustIntegrityHash(otherCode, sampleDeploy(), 0), "code")
	assert.NotEqual(t, base, MustIntegrityHash(sampleRuntime(), Seq(), 0), "deploy code")
}

func TestIntegrityHashIgnoresAnnotations(t *testing.T) {
	base := MustIntegrityHash(sampleRuntime(), sampleDeploy(), 0)
	annotated := MustIntegrityHash(sampleRuntime().WithAnnotation("runtime"), sampleDeploy(), 0)
	assert.Equal(t, base, annotated)
}

func TestHashWithDomainSeparator(t *testing.T) {
	got := hashWithDomain("d", []byte("x"))
	want := sha256.Sum256([]byte("d\x00x"))
	assert.Equal(t, want, got)

	// Moving the boundary must change the hash.
	assert.NotEqual(t, hashWithDomain("dx", nil), hashWithDomain("d", []byte("x")))
}

func TestMustIntegrityHashPanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { MustIntegrityHash(nil, sampleDeploy(), 0) })
}
