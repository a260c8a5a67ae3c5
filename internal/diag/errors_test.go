package diag

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type named string

func (n named) String() string { return string(n) }

func TestErrorFormatting(t *testing.T) {
	err := CantConvert(7, named("int128"), named("bytes4"))
	assert.Equal(t, "TYPE_MISMATCH: can't convert int128 to bytes4 (node=7)", err.Error())

	err = Panicf("unreachable %s", "branch")
	assert.Equal(t, "COMPILER_PANIC: unreachable branch", err.Error())
}

func TestIsUnwrapsChains(t *testing.T) {
	base := InvalidLiteral(3, "number out of range")
	wrapped := fmt.Errorf("lowering f: %w", fmt.Errorf("convert: %w", base))

	assert.True(t, Is(wrapped, KindInvalidLiteral))
	assert.False(t, Is(wrapped, KindTypeMismatch))
	assert.Equal(t, KindInvalidLiteral, KindOf(wrapped))
}

func TestIsOnForeignError(t *testing.T) {
	err := fmt.Errorf("plain")
	assert.False(t, Is(err, KindCompilerPanic))
	assert.Equal(t, Kind(""), KindOf(err))
	assert.False(t, Is(nil, KindStructure))
}
