package addrspace

import (
	"github.com/drotos/ucsim/emu/cell"
	"github.com/drotos/ucsim/emu/chip"
)

// bitBanderDecoder gives each address in [asBegin,asEnd] its own bit
// within a target chip, the way Cortex-M bit-banding exposes one word
// per bit of a backing SRAM or peripheral region. base is the range's
// original as_begin, held separately from asBegin/asEnd so splitting or
// shrinking the active sub-range never perturbs the bit arithmetic.
type bitBanderDecoder struct {
	base           uint32
	asBegin, asEnd uint32
	c              *chip.Chip
	targetBegin    uint32
	bitsPerCell    int
	distance       uint32
}

func (d *bitBanderDecoder) begin() uint32 { return d.asBegin }
func (d *bitBanderDecoder) end() uint32   { return d.asEnd }

func (d *bitBanderDecoder) clone(nb, ne uint32) decoder {
	return &bitBanderDecoder{
		base:        d.base,
		asBegin:     nb,
		asEnd:       ne,
		c:           d.c,
		targetBegin: d.targetBegin,
		bitsPerCell: d.bitsPerCell,
		distance:    d.distance,
	}
}

func (d *bitBanderDecoder) slotAndBit(addr uint32) (uint32, uint32) {
	offset := addr - d.base
	cellIdx := offset / uint32(d.bitsPerCell)
	bitIdx := offset % uint32(d.bitsPerCell)
	return d.targetBegin + cellIdx*d.distance, 1 << bitIdx
}

func (d *bitBanderDecoder) markDecoded() {
	lo, _ := d.slotAndBit(d.asBegin)
	hi, _ := d.slotAndBit(d.asEnd)
	for a := lo; a <= hi; a += d.distance {
		d.c.SetFlag(a, chip.FlagDecoded, true)
	}
}

func (d *bitBanderDecoder) cellFor(addr uint32, tbl *cell.Table) (*cell.Cell, uint32) {
	slot, bit := d.slotAndBit(addr)
	return tbl.Cell(d.c, slot), bit
}

// MapBitBander installs a bit-bander decoder over [asBegin,asEnd]:
// address asBegin+k addresses bit (k % bitsPerCell) of the chip slot
// targetBegin + (k/bitsPerCell)*distance. Reads return 0 or 1; writes
// set or clear the addressed bit and leave the rest of the target slot
// untouched.
func (s *Space) MapBitBander(asBegin, asEnd uint32, c *chip.Chip, targetBegin uint32, bitsPerCell int, distance uint32) {
	d := &bitBanderDecoder{
		base:        asBegin,
		asBegin:     asBegin,
		asEnd:       asEnd,
		c:           c,
		targetBegin: targetBegin,
		bitsPerCell: bitsPerCell,
		distance:    distance,
	}
	s.activate(d)
}
