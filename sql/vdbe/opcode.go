package vdbe // import "gopkg.in/src-d/go-selectc.v0/sql/vdbe"

// Opcode is a virtual machine instruction code.
//
// Registers are numbered from 1. Unless stated otherwise, comparison
// opcodes jump to P2 when r[P1] <op> r[P3] holds.
type Opcode uint8

// Opcodes.
const (
	OpNoop Opcode = iota
	// Goto jumps to P2.
	OpGoto
	// Gosub stores the current address in r[P1] and jumps to P2.
	OpGosub
	// Return jumps to the address after the one stored in r[P1].
	OpReturn
	// InitCoroutine sets r[P1] so that the next Yield on it enters the
	// coroutine at P3, then jumps to P2 if it is not zero.
	OpInitCoroutine
	// Yield swaps the current address with the one stored in r[P1].
	// When the coroutine ends, execution continues at P2 of the Yield
	// that resumed it.
	OpYield
	// EndCoroutine returns to P2 of the Yield that last resumed the
	// coroutine whose address is in r[P1].
	OpEndCoroutine
	// Halt stops the program. A non-zero P1 is an error with message P4.
	OpHalt
	// Once falls through the first time it runs and jumps to P2 afterwards.
	OpOnce
	// If jumps to P2 when r[P1] is true, or NULL and P3 is set.
	OpIf
	// IfNot jumps to P2 when r[P1] is false, or NULL and P3 is set.
	OpIfNot
	// IfPos jumps to P2 and subtracts P3 from r[P1] when r[P1] > 0.
	OpIfPos
	// IfNotZero jumps to P2 when r[P1] is not zero, decrementing it if
	// positive.
	OpIfNotZero
	// DecrJumpZero decrements r[P1] and jumps to P2 if it became zero.
	OpDecrJumpZero
	// OffsetLimit sets r[P2] to r[P1]+max(r[P3],0) when r[P1] > 0, else -1.
	OpOffsetLimit
	// MustBeInt converts r[P1] to an integer, jumping to P2 or failing
	// when it is not one.
	OpMustBeInt
	// IsNull jumps to P2 when r[P1] is NULL.
	OpIsNull
	// NotNull jumps to P2 when r[P1] is not NULL.
	OpNotNull
	// Jump jumps to P1, P2 or P3 when the last Compare was less, equal or
	// greater.
	OpJump

	// Null sets r[P2] through r[P3] to NULL. With P1 set the values never
	// compare equal under NullEq.
	OpNull
	// Integer sets r[P2] to P1.
	OpInteger
	// Real sets r[P2] to the float P4.
	OpReal
	// String sets r[P2] to the text P4.
	OpString
	// Blob sets r[P2] to the bytes P4.
	OpBlob
	// Copy copies P3+1 registers from r[P1] to r[P2].
	OpCopy
	// SCopy copies r[P1] to r[P2].
	OpSCopy
	// Move moves P3 registers from r[P1] to r[P2], leaving NULLs behind.
	OpMove
	// Affinity applies the affinity string P4 to P2 registers from r[P1].
	OpAffinity
	// Cast applies the affinity P2 to r[P1].
	OpCast

	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe

	// And, Or: r[P3] = r[P1] op r[P2] in three valued logic.
	OpAnd
	OpOr
	// Not sets r[P2] to NOT r[P1].
	OpNot
	// Arithmetic: r[P3] = r[P1] op r[P2].
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpRemainder
	OpConcat
	// Negate sets r[P2] to -r[P1].
	OpNegate

	// Function calls P4 with P2 arguments from r[P1], result in r[P3].
	OpFunction
	// CollSeq sets the collation P4 for the next Function or AggStep.
	OpCollSeq
	// AggStep feeds P2 arguments from r[P1] to the accumulator r[P3].
	OpAggStep
	// AggFinal replaces the accumulator r[P1] with its result.
	OpAggFinal

	// OpenRead opens cursor P1 on the stored table P4.
	OpOpenRead
	// OpenEphemeral opens cursor P1 on a new ephemeral index of P2 fields
	// ordered by the key definition P4.
	OpOpenEphemeral
	// OpenPseudo opens cursor P1 reading the record in r[P2], of P3 fields.
	OpOpenPseudo
	// SorterOpen opens cursor P1 on a sorter of P2 fields and key P4.
	OpSorterOpen
	OpClose
	// Rewind positions P1 on its first row, jumping to P2 if empty.
	OpRewind
	// Sort is Rewind for an ephemeral index used for sorting.
	OpSort
	// Last positions P1 on its last row, jumping to P2 if empty.
	OpLast
	// Next advances P1 and jumps to P2 if a row is available.
	OpNext
	// Prev moves P1 backwards and jumps to P2 if a row is available.
	OpPrev
	// Column reads field P2 of the current row of P1 into r[P3].
	OpColumn
	// NullRow makes every column of P1 read as NULL.
	OpNullRow
	// Count stores the number of rows of P1 in r[P2].
	OpCount
	// RowData stores the current record of P1 in r[P2].
	OpRowData
	// MakeRecord builds a record of P2 registers from r[P1] into r[P3],
	// applying the affinity string P4 when set.
	OpMakeRecord
	// IdxInsert inserts the record r[P2] into P1, replacing an equal key.
	OpIdxInsert
	// IdxDelete deletes from P1 the entry whose key is the P3 registers
	// starting at r[P2].
	OpIdxDelete
	// Delete deletes the current row of P1.
	OpDelete
	// Found jumps to P2 when P1 has an entry matching the P4 registers from
	// r[P3], or the record r[P3] when P4 is zero.
	OpFound
	// NotFound is the opposite of Found.
	OpNotFound
	// IdxLE jumps to P2 when the key of the current entry of P1 is less
	// than or equal to the P4 registers from r[P3].
	OpIdxLE
	// Sequence stores the next sequence number of P1 in r[P2].
	OpSequence
	// SequenceTest jumps to P2 if the sequence of P1 is zero, then
	// increments it.
	OpSequenceTest
	// NextIDEphemeral stores the next row id of ephemeral P1 in r[P2].
	OpNextIDEphemeral
	// ResetSorter deletes every row of P1.
	OpResetSorter
	// SorterInsert appends the record r[P2] to the sorter P1.
	OpSorterInsert
	// SorterSort sorts P1 and positions it on its first row, jumping to P2
	// if it is empty.
	OpSorterSort
	// SorterNext advances P1 and jumps to P2 if a row is available.
	OpSorterNext
	// SorterData stores the current record of P1 in r[P2].
	OpSorterData
	// Permutation sets the permutation P4 used by the next Compare.
	OpPermutation
	// Compare compares P3 registers from r[P1] and r[P2] with key P4.
	OpCompare
	// ResultRow outputs P2 registers from r[P1].
	OpResultRow

	numOpcodes
)

// Flags of the P5 operand.
const (
	// NullEq makes Eq and Ne treat two NULLs as equal.
	NullEq uint16 = 0x80
	// JumpIfNull makes comparisons jump when an operand is NULL.
	JumpIfNull uint16 = 0x10
	// StoreP2 makes comparisons store their result in r[P2] instead of
	// jumping.
	StoreP2 uint16 = 0x20
	// Permute makes Compare use the last Permutation.
	Permute uint16 = 0x01
)

var opcodeNames = [numOpcodes]string{
	OpNoop:            "Noop",
	OpGoto:            "Goto",
	OpGosub:           "Gosub",
	OpReturn:          "Return",
	OpInitCoroutine:   "InitCoroutine",
	OpYield:           "Yield",
	OpEndCoroutine:    "EndCoroutine",
	OpHalt:            "Halt",
	OpOnce:            "Once",
	OpIf:              "If",
	OpIfNot:           "IfNot",
	OpIfPos:           "IfPos",
	OpIfNotZero:       "IfNotZero",
	OpDecrJumpZero:    "DecrJumpZero",
	OpOffsetLimit:     "OffsetLimit",
	OpMustBeInt:       "MustBeInt",
	OpIsNull:          "IsNull",
	OpNotNull:         "NotNull",
	OpJump:            "Jump",
	OpNull:            "Null",
	OpInteger:         "Integer",
	OpReal:            "Real",
	OpString:          "String",
	OpBlob:            "Blob",
	OpCopy:            "Copy",
	OpSCopy:           "SCopy",
	OpMove:            "Move",
	OpAffinity:        "Affinity",
	OpCast:            "Cast",
	OpEq:              "Eq",
	OpNe:              "Ne",
	OpLt:              "Lt",
	OpLe:              "Le",
	OpGt:              "Gt",
	OpGe:              "Ge",
	OpAnd:             "And",
	OpOr:              "Or",
	OpNot:             "Not",
	OpAdd:             "Add",
	OpSubtract:        "Subtract",
	OpMultiply:        "Multiply",
	OpDivide:          "Divide",
	OpRemainder:       "Remainder",
	OpConcat:          "Concat",
	OpNegate:          "Negate",
	OpFunction:        "Function",
	OpCollSeq:         "CollSeq",
	OpAggStep:         "AggStep",
	OpAggFinal:        "AggFinal",
	OpOpenRead:        "OpenRead",
	OpOpenEphemeral:   "OpenEphemeral",
	OpOpenPseudo:      "OpenPseudo",
	OpSorterOpen:      "SorterOpen",
	OpClose:           "Close",
	OpRewind:          "Rewind",
	OpSort:            "Sort",
	OpLast:            "Last",
	OpNext:            "Next",
	OpPrev:            "Prev",
	OpColumn:          "Column",
	OpNullRow:         "NullRow",
	OpCount:           "Count",
	OpRowData:         "RowData",
	OpMakeRecord:      "MakeRecord",
	OpIdxInsert:       "IdxInsert",
	OpIdxDelete:       "IdxDelete",
	OpDelete:          "Delete",
	OpFound:           "Found",
	OpNotFound:        "NotFound",
	OpIdxLE:           "IdxLE",
	OpSequence:        "Sequence",
	OpSequenceTest:    "SequenceTest",
	OpNextIDEphemeral: "NextIdEphemeral",
	OpResetSorter:     "ResetSorter",
	OpSorterInsert:    "SorterInsert",
	OpSorterSort:      "SorterSort",
	OpSorterNext:      "SorterNext",
	OpSorterData:      "SorterData",
	OpPermutation:     "Permutation",
	OpCompare:         "Compare",
	OpResultRow:       "ResultRow",
}

func (o Opcode) String() string {
	if o < numOpcodes && opcodeNames[o] != "" {
		return opcodeNames[o]
	}
	return "Unknown"
}

// jumpsP2 lists the opcodes whose P2 operand is a jump target.
var jumpsP2 = map[Opcode]bool{
	OpGoto:          true,
	OpGosub:         true,
	OpInitCoroutine: true,
	OpYield:         true,
	OpOnce:          true,
	OpIf:            true,
	OpIfNot:         true,
	OpIfPos:         true,
	OpIfNotZero:     true,
	OpDecrJumpZero:  true,
	OpMustBeInt:     true,
	OpIsNull:        true,
	OpNotNull:       true,
	OpEq:            true,
	OpNe:            true,
	OpLt:            true,
	OpLe:            true,
	OpGt:            true,
	OpGe:            true,
	OpRewind:        true,
	OpSort:          true,
	OpLast:          true,
	OpNext:          true,
	OpPrev:          true,
	OpFound:         true,
	OpNotFound:      true,
	OpIdxLE:         true,
	OpSequenceTest:  true,
	OpSorterSort:    true,
	OpSorterNext:    true,
}

// IsComparison returns whether the opcode is one of Eq, Ne, Lt, Le, Gt, Ge.
func (o Opcode) IsComparison() bool {
	return o >= OpEq && o <= OpGe
}
