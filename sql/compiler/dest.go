package compiler

import "gopkg.in/src-d/go-selectc.v0/sql/tree"

// DestKind tells what to do with each row a select produces.
type DestKind uint8

// Destination kinds. The kinds up to DestDistQueue do not care about the
// order of the rows they receive.
const (
	// DestUnion inserts the row into the ephemeral index Parm.
	DestUnion DestKind = iota + 1
	// DestExcept removes the row from the ephemeral index Parm.
	DestExcept
	// DestExists stores 1 in register Parm.
	DestExists
	// DestDiscard throws the row away.
	DestDiscard
	// DestFifo appends the row to the queue Parm.
	DestFifo
	// DestDistFifo is DestFifo skipping rows already seen, remembered in
	// the index Parm+1.
	DestDistFifo
	// DestQueue inserts the row into the priority queue Parm ordered by
	// OrderBy.
	DestQueue
	// DestDistQueue is DestQueue skipping rows already seen, remembered in
	// the index Parm+1.
	DestDistQueue
	// DestOutput returns the row to the caller.
	DestOutput
	// DestMem stores the row in the registers starting at Parm.
	DestMem
	// DestSet inserts the row, with Affinity applied, into the index Parm.
	DestSet
	// DestEphemTab stores the row in the ephemeral table Parm, opening it
	// first.
	DestEphemTab
	// DestCoroutine yields the row to the coroutine whose address is in
	// register Parm.
	DestCoroutine
	// DestTable stores the row in the already open ephemeral table Parm.
	DestTable
)

var destNames = map[DestKind]string{
	DestUnion:     "union",
	DestExcept:    "except",
	DestExists:    "exists",
	DestDiscard:   "discard",
	DestFifo:      "fifo",
	DestDistFifo:  "dist-fifo",
	DestQueue:     "queue",
	DestDistQueue: "dist-queue",
	DestOutput:    "output",
	DestMem:       "mem",
	DestSet:       "set",
	DestEphemTab:  "ephem-tab",
	DestCoroutine: "coroutine",
	DestTable:     "table",
}

func (k DestKind) String() string { return destNames[k] }

// ignoresOrder reports whether the destination does not depend on the
// order of the rows, so ORDER BY can be dropped.
func (k DestKind) ignoresOrder() bool { return k <= DestDistQueue }

// ignoresDistinct reports whether the destination already drops
// duplicates or discards rows, so DISTINCT can be dropped.
func (k DestKind) ignoresDistinct() bool {
	switch k {
	case DestExists, DestUnion, DestExcept, DestDiscard, DestDistFifo, DestDistQueue:
		return true
	}
	return false
}

// Dest describes where the rows of a select go.
type Dest struct {
	Kind DestKind
	// Parm is the cursor or register the destination writes to.
	Parm int
	// Affinity is applied to the columns of a DestSet record.
	Affinity string
	// OrderBy is the key of a DestQueue or DestDistQueue.
	OrderBy tree.ExprList
	// Reg is the first register holding the row, allocated on first use
	// when zero.
	Reg int
	// Count is the number of registers starting at Reg.
	Count int
}

// NewDest returns a destination of the given kind.
func NewDest(kind DestKind, parm int) *Dest {
	return &Dest{Kind: kind, Parm: parm}
}
