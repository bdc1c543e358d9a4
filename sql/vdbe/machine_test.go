package vdbe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/function"
)

type testStorage map[string][]sql.Row

func (s testStorage) Rows(_ *sql.Context, t *sql.Table) ([]sql.Row, error) {
	rows, ok := s[t.Name]
	if !ok {
		return nil, sql.ErrTableNotFound.New(t.Name)
	}
	return rows, nil
}

func run(t *testing.T, b *Builder, storage Storage) ([]sql.Row, Stats) {
	t.Helper()
	p, err := b.Finish(nil)
	require.NoError(t, err)
	rows, stats, err := Exec(sql.NewEmptyContext(), p, storage)
	require.NoError(t, err)
	return rows, stats
}

func TestMachineTableScan(t *testing.T) {
	require := require.New(t)

	table := sql.NewTable("t", &sql.Column{Name: "a", Type: "INTEGER"})
	storage := testStorage{"t": {sql.NewRow(int64(1)), sql.NewRow(int64(2)), sql.NewRow(int64(3))}}

	b := NewBuilder()
	cur := b.AllocCursor()
	reg := b.AllocReg()
	end := b.MakeLabel()
	b.Op4(OpOpenRead, cur, 0, 0, table)
	b.Op2(OpRewind, cur, end)
	top := b.Op3(OpColumn, cur, 0, reg)
	b.Op2(OpResultRow, reg, 1)
	b.Op2(OpNext, cur, top)
	b.ResolveLabel(end)
	b.Op0(OpHalt)

	rows, stats := run(t, b, storage)
	require.Equal([]sql.Row{{int64(1)}, {int64(2)}, {int64(3)}}, rows)
	require.Equal(1, stats.TableScans)
}

func TestMachineHaltWithError(t *testing.T) {
	require := require.New(t)

	b := NewBuilder()
	b.Op4(OpHalt, 1, 0, 0, "boom")
	p, err := b.Finish(nil)
	require.NoError(err)

	_, _, err = Exec(sql.NewEmptyContext(), p, testStorage{})
	require.Error(err)
	require.True(ErrHalt.Is(err))
	require.Equal("boom", err.Error())
}

func TestMachineCanceledContext(t *testing.T) {
	require := require.New(t)

	b := NewBuilder()
	b.Op2(OpGoto, 0, 0)
	p, err := b.Finish(nil)
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = Exec(sql.NewContext(ctx), p, testStorage{})
	require.Equal(context.Canceled, err)
}

func TestMachineComparisons(t *testing.T) {
	testCases := []struct {
		name     string
		op       Opcode
		a, b     interface{}
		p5       uint16
		expected interface{}
	}{
		{"eq", OpEq, int64(1), int64(1), 0, int64(1)},
		{"eq int float", OpEq, int64(1), float64(1), 0, int64(1)},
		{"ne", OpNe, "a", "b", 0, int64(1)},
		{"lt", OpLt, int64(1), "a", 0, int64(1)},
		{"ge", OpGe, int64(1), int64(2), 0, int64(0)},
		{"null", OpEq, nil, int64(1), 0, nil},
		{"null eq", OpEq, nil, nil, NullEq, int64(1)},
		{"null ne", OpNe, nil, int64(1), NullEq, int64(1)},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			b := NewBuilder()
			ra, rb, dst := b.AllocReg(), b.AllocReg(), b.AllocReg()
			b.Op4(OpReal, 0, ra, 0, tt.a)
			b.Op4(OpReal, 0, rb, 0, tt.b)
			b.Op3(tt.op, ra, dst, rb)
			b.SetP5(tt.p5 | StoreP2)
			b.Op2(OpResultRow, dst, 1)

			rows, _ := run(t, b, nil)
			require.Equal([]sql.Row{{tt.expected}}, rows)
		})
	}
}

func TestMachineClearedNullNeverEqual(t *testing.T) {
	require := require.New(t)

	b := NewBuilder()
	ra, rb, dst := b.AllocReg(), b.AllocReg(), b.AllocReg()
	b.Op3(OpNull, 1, ra, 0)
	b.Op3(OpNull, 0, rb, 0)
	b.Op3(OpEq, ra, dst, rb)
	b.SetP5(NullEq | StoreP2)
	b.Op2(OpResultRow, dst, 1)

	rows, _ := run(t, b, nil)
	require.Equal([]sql.Row{{int64(0)}}, rows)
}

func TestMachineLogic(t *testing.T) {
	testCases := []struct {
		op       Opcode
		a, b     interface{}
		expected interface{}
	}{
		{OpAnd, int64(1), nil, nil},
		{OpAnd, int64(0), nil, int64(0)},
		{OpOr, int64(1), nil, int64(1)},
		{OpOr, int64(0), nil, nil},
		{OpOr, int64(0), int64(0), int64(0)},
	}

	for _, tt := range testCases {
		t.Run(tt.op.String(), func(t *testing.T) {
			b := NewBuilder()
			ra, rb, dst := b.AllocReg(), b.AllocReg(), b.AllocReg()
			b.Op4(OpReal, 0, ra, 0, tt.a)
			b.Op4(OpReal, 0, rb, 0, tt.b)
			b.Op3(tt.op, ra, rb, dst)
			b.Op2(OpResultRow, dst, 1)

			rows, _ := run(t, b, nil)
			require.Equal(t, []sql.Row{{tt.expected}}, rows)
		})
	}
}

func TestMachineCoroutine(t *testing.T) {
	require := require.New(t)

	b := NewBuilder()
	reg := b.AllocReg()
	co := b.BeginCoroutine()
	for i := 1; i <= 3; i++ {
		b.Op2(OpInteger, i, reg)
		co.Yield(b)
	}
	co.End(b)

	done := b.MakeLabel()
	top := co.Resume(b, done)
	b.Op2(OpResultRow, reg, 1)
	b.Op2(OpGoto, 0, top)
	b.ResolveLabel(done)

	// Resuming an exhausted coroutine keeps jumping to its end.
	again := b.MakeLabel()
	co.Resume(b, again)
	b.Op4(OpHalt, 1, 0, 0, "coroutine resumed past its end")
	b.ResolveLabel(again)
	b.Op0(OpHalt)

	rows, _ := run(t, b, nil)
	require.Equal([]sql.Row{{int64(1)}, {int64(2)}, {int64(3)}}, rows)
}

func TestMachineSubroutineOnce(t *testing.T) {
	require := require.New(t)

	b := NewBuilder()
	regRet, counter, loop := b.AllocReg(), b.AllocReg(), b.AllocReg()
	sub := b.MakeLabel()
	b.Op2(OpInteger, 3, loop)
	top := b.Op2(OpGosub, regRet, sub)
	b.Op2(OpResultRow, counter, 1)
	b.Op2(OpDecrJumpZero, loop, b.Addr()+2)
	b.Op2(OpGoto, 0, top)
	b.Op0(OpHalt)

	b.ResolveLabel(sub)
	once := b.Op0(OpOnce)
	b.Op3(OpAdd, counter, counter, counter)
	b.Op2(OpInteger, 1, counter)
	b.JumpHere(once)
	b.Op1(OpReturn, regRet)

	rows, _ := run(t, b, nil)
	require.Equal([]sql.Row{{int64(1)}, {int64(1)}, {int64(1)}}, rows)
}

func TestMachineEphemeralDistinct(t *testing.T) {
	require := require.New(t)

	b := NewBuilder()
	cur := b.AllocCursor()
	val, rec := b.AllocReg(), b.AllocReg()
	b.Op2(OpOpenEphemeral, cur, 1)
	for _, v := range []int{3, 1, 3, 2, 1} {
		b.Op2(OpInteger, v, val)
		skip := b.Op4(OpFound, cur, 0, val, 1)
		b.Op3(OpMakeRecord, val, 1, rec)
		b.Op2(OpIdxInsert, cur, rec)
		b.Op2(OpResultRow, val, 1)
		b.JumpHere(skip)
	}
	b.Op0(OpHalt)

	rows, stats := run(t, b, nil)
	require.Equal([]sql.Row{{int64(3)}, {int64(1)}, {int64(2)}}, rows)
	require.Equal(3, stats.MaxEphemeralRows)
}

func TestMachineSortedIndexDescending(t *testing.T) {
	require := require.New(t)

	b := NewBuilder()
	cur := b.AllocCursor()
	key, seq, rec, out := b.AllocReg(), b.AllocReg(), b.AllocReg(), b.AllocReg()
	kd := &KeyDef{Parts: []KeyPart{
		{Field: 0, Collation: sql.Binary, Desc: true},
		{Field: 1, Collation: sql.Binary},
	}}
	b.Op4(OpOpenEphemeral, cur, 2, 0, kd)
	for _, v := range []int{2, 5, 2, 9} {
		b.Op2(OpInteger, v, key)
		b.Op2(OpSequence, cur, seq)
		b.Op3(OpMakeRecord, key, 2, rec)
		b.Op2(OpIdxInsert, cur, rec)
	}
	end := b.MakeLabel()
	b.Op2(OpSort, cur, end)
	top := b.Op3(OpColumn, cur, 0, out)
	b.Op2(OpResultRow, out, 1)
	b.Op2(OpNext, cur, top)
	b.ResolveLabel(end)

	rows, _ := run(t, b, nil)
	require.Equal([]sql.Row{{int64(9)}, {int64(5)}, {int64(2)}, {int64(2)}}, rows)
}

func TestMachineSorter(t *testing.T) {
	require := require.New(t)

	b := NewBuilder()
	cur, pseudo := b.AllocCursor(), b.AllocCursor()
	key, data, rec, out := b.AllocReg(), b.AllocReg(), b.AllocReg(), b.AllocReg()
	b.Op4(OpSorterOpen, cur, 2, 0, &KeyDef{Parts: []KeyPart{{Field: 0, Collation: sql.NoCase}}})
	for _, v := range []string{"b", "A", "a", "C"} {
		b.Op4(OpString, 0, key, 0, v)
		b.Op4(OpString, 0, data, 0, v)
		b.Op3(OpMakeRecord, key, 2, rec)
		b.Op2(OpSorterInsert, cur, rec)
	}
	b.Op3(OpOpenPseudo, pseudo, rec, 2)
	end := b.MakeLabel()
	b.Op2(OpSorterSort, cur, end)
	top := b.Op3(OpSorterData, cur, rec, pseudo)
	b.Op3(OpColumn, pseudo, 1, out)
	b.Op2(OpResultRow, out, 1)
	b.Op2(OpSorterNext, cur, top)
	b.ResolveLabel(end)

	rows, _ := run(t, b, nil)
	require.Equal([]sql.Row{{"A"}, {"a"}, {"b"}, {"C"}}, rows)
}

func TestMachinePseudoCursorAfterNullRow(t *testing.T) {
	require := require.New(t)

	b := NewBuilder()
	pseudo := b.AllocCursor()
	val, rec, out := b.AllocReg(), b.AllocReg(), b.AllocReg()
	b.Op3(OpOpenPseudo, pseudo, rec, 1)
	for _, v := range []int{1, 2} {
		b.Op2(OpInteger, v, val)
		b.Op3(OpMakeRecord, val, 1, rec)
		b.Op1(OpNullRow, pseudo)
		b.Op3(OpColumn, pseudo, 0, out)
		b.Op2(OpResultRow, out, 1)
	}

	rows, _ := run(t, b, nil)
	require.Equal([]sql.Row{{int64(1)}, {int64(2)}}, rows)
}

func TestMachineLimitedSortIndex(t *testing.T) {
	require := require.New(t)

	// Keep the two smallest values, deleting the worst entry before an
	// insert once the index is full.
	b := NewBuilder()
	cur := b.AllocCursor()
	limit, key, seq, rec, out := b.AllocReg(), b.AllocReg(), b.AllocReg(), b.AllocReg(), b.AllocReg()
	b.Op4(OpOpenEphemeral, cur, 2, 0, NewKeyDef(2))
	b.Op2(OpInteger, 2, limit)
	for _, v := range []int{7, 3, 9, 1, 4} {
		b.Op2(OpInteger, v, key)
		b.Op2(OpSequence, cur, seq)
		b.Op3(OpMakeRecord, key, 2, rec)
		insert, skip := b.MakeLabel(), b.MakeLabel()
		b.Op2(OpIfNotZero, limit, insert)
		b.Op1(OpLast, cur)
		b.Op4(OpIdxLE, cur, skip, key, 1)
		b.Op1(OpDelete, cur)
		b.ResolveLabel(insert)
		b.Op2(OpIdxInsert, cur, rec)
		b.ResolveLabel(skip)
	}
	end := b.MakeLabel()
	b.Op2(OpSort, cur, end)
	top := b.Op3(OpColumn, cur, 0, out)
	b.Op2(OpResultRow, out, 1)
	b.Op2(OpNext, cur, top)
	b.ResolveLabel(end)

	rows, stats := run(t, b, nil)
	require.Equal([]sql.Row{{int64(1)}, {int64(3)}}, rows)
	require.Equal(2, stats.MaxEphemeralRows)
}

func TestMachineCompareJump(t *testing.T) {
	require := require.New(t)

	b := NewBuilder()
	a, c, out := b.AllocRegs(2), b.AllocRegs(2), b.AllocReg()
	b.Op2(OpInteger, 1, a)
	b.Op2(OpInteger, 5, a+1)
	b.Op2(OpInteger, 1, c)
	b.Op2(OpInteger, 2, c+1)
	b.Op4(OpPermutation, 0, 0, 0, []int{1, 0})
	b.Op4(OpCompare, a, c, 2, NewKeyDef(2))
	b.SetP5(Permute)
	lt, eq, gt := b.MakeLabel(), b.MakeLabel(), b.MakeLabel()
	b.Op3(OpJump, lt, eq, gt)
	done := b.MakeLabel()
	for i, l := range []int{lt, eq, gt} {
		b.ResolveLabel(l)
		b.Op2(OpInteger, i, out)
		b.Op2(OpGoto, 0, done)
	}
	b.ResolveLabel(done)
	b.Op2(OpResultRow, out, 1)

	rows, _ := run(t, b, nil)
	require.Equal([]sql.Row{{int64(2)}}, rows)
}

func TestMachineAggregates(t *testing.T) {
	require := require.New(t)

	count, err := function.Defaults.Function("count", 1)
	require.NoError(err)
	maxFn, err := function.Defaults.Function("max", 1)
	require.NoError(err)

	b := NewBuilder()
	arg, accCount, accMax := b.AllocReg(), b.AllocReg(), b.AllocReg()
	for _, v := range []interface{}{"b", nil, "a"} {
		b.Op4(OpReal, 0, arg, 0, v)
		b.Op4(OpAggStep, arg, 1, accCount, count)
		b.Op4(OpCollSeq, 0, 0, 0, sql.NoCase)
		b.Op4(OpAggStep, arg, 1, accMax, maxFn)
	}
	b.Op4(OpAggFinal, accCount, 1, 0, count)
	b.Op4(OpAggFinal, accMax, 1, 0, maxFn)
	b.Op2(OpResultRow, accCount, 2)

	rows, _ := run(t, b, nil)
	require.Equal([]sql.Row{{int64(2), "b"}}, rows)
}

func TestMachineOffsetLimit(t *testing.T) {
	testCases := []struct {
		limit, offset int
		expected      int64
	}{
		{5, 3, 8},
		{5, -1, 5},
		{0, 3, -1},
		{-1, 3, -1},
	}

	for _, tt := range testCases {
		b := NewBuilder()
		l, o, out := b.AllocReg(), b.AllocReg(), b.AllocReg()
		b.Op2(OpInteger, tt.limit, l)
		b.Op2(OpInteger, tt.offset, o)
		b.Op3(OpOffsetLimit, l, out, o)
		b.Op2(OpResultRow, out, 1)

		rows, _ := run(t, b, nil)
		require.Equal(t, []sql.Row{{tt.expected}}, rows)
	}
}
