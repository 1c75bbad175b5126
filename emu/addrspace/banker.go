package addrspace

import (
	"math/bits"

	"github.com/drotos/ucsim/emu/cell"
	"github.com/drotos/ucsim/emu/chip"
)

// Bank is one entry of a Banker's table: the chip and chip offset that
// becomes the active mapping when the control register selects this
// bank. A nil Chip is a deliberately unpopulated bank: selecting it
// leaves the previous mapping (or no mapping) in place.
type Bank struct {
	Chip      *chip.Chip
	ChipBegin uint32
}

// Banker is the bank-switcher specialization of a decoder: a control
// cell selects which of nuof_banks candidate (chip, chip_begin) pairs is
// currently bound to [asBegin,asEnd]. It implements cell.Banker, so a
// cell.NewBankSwitch operator installed on the control cell calls back
// into Activate() once the raw selector write has committed.
type Banker struct {
	space          *Space
	asBegin, asEnd uint32
	control        *cell.Cell
	mask           uint32
	shift          uint
	banks          []Bank
	active         int
	decoder        *linearDecoder
}

// NewBanker creates a bank switcher over [asBegin,asEnd] in s, selected
// by the field (val&mask)>>shift of control's current value. The bank
// table has 1<<popcount(mask>>shift) entries, matching the width of the
// selector field once normalized to bit 0.
func (s *Space) NewBanker(asBegin, asEnd uint32, control *cell.Cell, mask uint32, shift uint) *Banker {
	n := 1 << bits.OnesCount32(mask>>shift)
	return &Banker{
		space:   s,
		asBegin: asBegin,
		asEnd:   asEnd,
		control: control,
		mask:    mask,
		shift:   shift,
		banks:   make([]Bank, n),
		active:  -1,
	}
}

// AddBank populates bank table slot n.
func (b *Banker) AddBank(n int, c *chip.Chip, chipBegin uint32) {
	b.banks[n] = Bank{Chip: c, ChipBegin: chipBegin}
}

// Active returns the index of the bank selected by the control cell's
// current value, without touching the decoder table.
func (b *Banker) Active() int { return b.active }

// Activate reads the control cell, selects the bank it names, and
// (re)installs a linear decoder over [asBegin,asEnd] pointing at that
// bank's chip. The previous decoder, if still installed, is deactivated
// first; pieces of it left behind by splits since the last switch lie
// inside [asBegin,asEnd] and are removed by the new decoder's overlap
// resolution.
func (b *Banker) Activate() {
	val := b.control.Read()
	n := int((val & b.mask) >> b.shift)
	b.active = n
	if n < 0 || n >= len(b.banks) {
		return
	}
	entry := b.banks[n]
	if entry.Chip == nil {
		return
	}
	if b.decoder != nil {
		b.space.deactivate(b.decoder)
	}
	nd := &linearDecoder{asBegin: b.asBegin, asEnd: b.asEnd, c: entry.Chip, chipBegin: entry.ChipBegin}
	b.decoder = nd
	b.space.activate(nd)
}
