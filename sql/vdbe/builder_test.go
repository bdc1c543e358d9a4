package vdbe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilderLabels(t *testing.T) {
	require := require.New(t)

	b := NewBuilder()
	end := b.MakeLabel()
	require.True(IsLabel(end))

	b.Op2(OpGoto, 0, end)
	b.Op2(OpInteger, 1, b.AllocReg())
	b.ResolveLabel(end)
	b.Op0(OpHalt)

	p, err := b.Finish(nil)
	require.NoError(err)
	require.Equal(2, p.Instructions[0].P2)
	require.Equal(1, p.NumRegs)
}

func TestBuilderUnresolvedLabel(t *testing.T) {
	require := require.New(t)

	b := NewBuilder()
	b.Op2(OpGoto, 0, b.MakeLabel())
	_, err := b.Finish(nil)
	require.Error(err)
	require.True(ErrUnresolvedLabel.Is(err))
}

func TestBuilderStoreP2IsNotALabel(t *testing.T) {
	require := require.New(t)

	b := NewBuilder()
	dst := b.AllocReg()
	b.Op3(OpEq, 1, dst, 2)
	b.SetP5(StoreP2)

	p, err := b.Finish(nil)
	require.NoError(err)
	require.Equal(dst, p.Instructions[0].P2)
}

func TestBuilderTempRegs(t *testing.T) {
	require := require.New(t)

	b := NewBuilder()
	r1 := b.TempReg()
	b.ReleaseTempReg(r1)
	require.Equal(r1, b.TempReg())

	first := b.TempRange(3)
	b.ReleaseTempRange(first, 3)
	require.Equal(first, b.TempRange(2))

	b.ClearTempRegs()
	require.NotEqual(first, b.TempRange(2))
}

func TestBuilderChangeToNoop(t *testing.T) {
	require := require.New(t)

	b := NewBuilder()
	addr := b.Op2(OpInteger, 5, b.AllocReg())
	b.Comment("five")
	require.Equal("five", b.Op(addr).Comment)

	b.ChangeToNoop(addr)
	require.Equal(OpNoop, b.Op(addr).Op)
}

func TestProgramExplain(t *testing.T) {
	require := require.New(t)

	b := NewBuilder()
	b.Op4(OpString, 0, b.AllocReg(), 0, "hi")
	b.Op0(OpHalt)
	p, err := b.Finish([]string{"x"})
	require.NoError(err)

	rows := p.Explain()
	require.Len(rows, 2)
	require.Equal([]string{"0", "String", "0", "1", "0", `"hi"`, "0", ""}, rows[0])
	require.Contains(p.String(), "Halt")
	require.Equal(1, p.Count(OpHalt))
}
