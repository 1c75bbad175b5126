package addrspace

import (
	"github.com/drotos/ucsim/emu/cell"
	"github.com/drotos/ucsim/emu/chip"
)

// linearDecoder maps one contiguous address-space range onto one
// contiguous chip range, address-for-address.
type linearDecoder struct {
	asBegin, asEnd uint32
	c              *chip.Chip
	chipBegin      uint32
}

func (d *linearDecoder) begin() uint32 { return d.asBegin }
func (d *linearDecoder) end() uint32   { return d.asEnd }

func (d *linearDecoder) toChip(addr uint32) uint32 {
	return d.chipBegin + (addr - d.asBegin)
}

func (d *linearDecoder) clone(nb, ne uint32) decoder {
	return &linearDecoder{
		asBegin:   nb,
		asEnd:     ne,
		c:         d.c,
		chipBegin: d.chipBegin + (nb - d.asBegin),
	}
}

func (d *linearDecoder) markDecoded() {
	lo := d.chipBegin
	hi := d.chipBegin + (d.asEnd - d.asBegin)
	for a := lo; a <= hi; a++ {
		d.c.SetFlag(a, chip.FlagDecoded, true)
	}
}

func (d *linearDecoder) cellFor(addr uint32, tbl *cell.Table) (*cell.Cell, uint32) {
	return tbl.Cell(d.c, d.toChip(addr)), 0
}

// MapChip installs a direct decoder mapping [asBegin,asEnd] in this space
// onto c starting at chipBegin, address-for-address. Any existing
// decoders overlapping the new range are split, shrunk or removed.
func (s *Space) MapChip(asBegin, asEnd uint32, c *chip.Chip, chipBegin uint32) error {
	span := asEnd - asBegin
	if chipBegin+span >= uint32(c.Size()) {
		return errRange{space: s.Name, chip: c.Name, asBegin: asBegin, asEnd: asEnd}
	}
	d := &linearDecoder{asBegin: asBegin, asEnd: asEnd, c: c, chipBegin: chipBegin}
	s.activate(d)
	return nil
}

type errRange struct {
	space, chip    string
	asBegin, asEnd uint32
}

func (e errRange) Error() string {
	return "addrspace: decoder range exceeds target chip bounds for space " + e.space + ", chip " + e.chip
}
