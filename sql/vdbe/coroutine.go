package vdbe

// Coroutine is a piece of code that produces rows one at a time. The
// producer yields after each row and the consumer resumes it to get the
// next one. Control moves between both through the address stored in Reg.
type Coroutine struct {
	// Reg holds the address to continue at on the next Yield.
	Reg int
	// Entry is the address of the first instruction of the coroutine.
	Entry int

	init int
}

// BeginCoroutine emits the start of a coroutine body. The body follows
// and is skipped over until End is called.
func (b *Builder) BeginCoroutine() *Coroutine {
	reg := b.AllocReg()
	addr := b.Op3(OpInitCoroutine, reg, 0, b.Addr()+1)
	return &Coroutine{Reg: reg, Entry: addr + 1, init: addr}
}

// Yield emits the producer side yield, giving a row to the consumer.
func (c *Coroutine) Yield(b *Builder) int {
	return b.Op1(OpYield, c.Reg)
}

// End emits the end of the body and makes the initial jump skip it.
func (c *Coroutine) End(b *Builder) {
	b.Op1(OpEndCoroutine, c.Reg)
	b.JumpHere(c.init)
}

// Resume emits the consumer side yield. When the coroutine has no more
// rows execution continues at exhausted.
func (c *Coroutine) Resume(b *Builder, exhausted int) int {
	return b.Op2(OpYield, c.Reg, exhausted)
}

// Restart emits a reset of the coroutine so that the next Resume runs it
// from the start.
func (c *Coroutine) Restart(b *Builder) int {
	return b.Op3(OpInitCoroutine, c.Reg, 0, c.Entry)
}
