package addrspace

import (
	"testing"

	"github.com/drotos/ucsim/emu/cell"
	"github.com/drotos/ucsim/emu/chip"
)

type fakeErrs struct {
	invalid    []uint32
	nonDecoded []uint32
}

func (f *fakeErrs) InvalidAddress(_ string, addr uint32) { f.invalid = append(f.invalid, addr) }
func (f *fakeErrs) NonDecoded(_ string, addr uint32)     { f.nonDecoded = append(f.nonDecoded, addr) }

func TestDecoderSplit(t *testing.T) {
	errs := &fakeErrs{}
	s := New("code", 0, 0x10000, errs)
	tbl := cell.NewTable()
	chipA := chip.New("flash", 0x2000, 8)
	chipB := chip.New("overlay", 0x1000, 8)

	if err := s.MapChip(0x1000, 0x1FFF, chipA, 0); err != nil {
		t.Fatalf("MapChip A: %v", err)
	}
	if err := s.MapChip(0x1400, 0x17FF, chipB, 0); err != nil {
		t.Fatalf("MapChip B: %v", err)
	}

	if got := s.DecoderCount(); got != 3 {
		t.Fatalf("DecoderCount = %d, want 3 (two A survivors + B)", got)
	}
	if !s.Disjoint() {
		t.Fatal("decoders must remain pairwise disjoint after a split")
	}

	chipA.Set(0x000, 0xAA) // as 0x1000
	chipA.Set(0x3FF, 0xBB) // as 0x13FF, last surviving A slot below the hole
	chipA.Set(0x800, 0xCC) // as 0x1800, first surviving A slot above the hole
	chipB.Set(0x000, 0xDD) // as 0x1400

	if v := s.Read(0x1000, tbl); v != 0xAA {
		t.Errorf("Read(0x1000) = %#x, want 0xaa", v)
	}
	if v := s.Read(0x13FF, tbl); v != 0xBB {
		t.Errorf("Read(0x13ff) = %#x, want 0xbb (left survivor of A)", v)
	}
	if v := s.Read(0x1400, tbl); v != 0xDD {
		t.Errorf("Read(0x1400) = %#x, want 0xdd (B)", v)
	}
	if v := s.Read(0x1800, tbl); v != 0xCC {
		t.Errorf("Read(0x1800) = %#x, want 0xcc (right survivor of A, rebased chip_begin)", v)
	}
}

func TestDecoderFullyCoveredRemoved(t *testing.T) {
	errs := &fakeErrs{}
	s := New("data", 0, 0x10000, errs)
	small := chip.New("small", 0x10, 8)
	big := chip.New("big", 0x200, 8)

	if err := s.MapChip(0x2000, 0x200F, small, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.MapChip(0x1F00, 0x20FF, big, 0); err != nil {
		t.Fatal(err)
	}
	if s.DecoderCount() != 1 {
		t.Fatalf("DecoderCount = %d, want 1 (small fully covered and removed)", s.DecoderCount())
	}
}

func TestBankSwitchScenario(t *testing.T) {
	errs := &fakeErrs{}
	s := New("code", 0, 0x10000, errs)
	tbl := cell.NewTable()

	sfr := chip.New("sfr", 1, 8)
	controlCell := tbl.Cell(sfr, 0)

	banker := s.NewBanker(0x8000, 0x9FFF, controlCell, 0x03, 0)

	chipLo := chip.New("bank0", 0x2000, 8)
	chipHi := chip.New("bankC", 0x2000, 8)
	banker.AddBank(0, chipLo, 0)
	banker.AddBank(3, chipHi, 0)
	chipHi.Set(0, 0x55)
	chipLo.Set(0, 0x11)

	controlCell.Append(cell.NewBankSwitch(banker))

	controlCell.Write(0x00, cell.Software)
	if v := s.Read(0x8000, tbl); v != 0x11 {
		t.Errorf("after selecting bank 0, Read(0x8000) = %#x, want 0x11", v)
	}

	controlCell.Write(0x03, cell.Software)
	if v := s.Read(0x8000, tbl); v != 0x55 {
		t.Errorf("after selecting bank 3, Read(0x8000) = %#x, want 0x55 (chipC)", v)
	}
	if banker.Active() != 3 {
		t.Errorf("Active() = %d, want 3", banker.Active())
	}
}

func TestBankSwitchTearsDownStaleSplit(t *testing.T) {
	errs := &fakeErrs{}
	s := New("code", 0, 0x10000, errs)
	tbl := cell.NewTable()

	sfr := chip.New("sfr", 1, 8)
	controlCell := tbl.Cell(sfr, 0)
	banker := s.NewBanker(0x8000, 0x8FFF, controlCell, 0x01, 0)

	chip0 := chip.New("bank0", 0x1000, 8)
	chip1 := chip.New("bank1", 0x1000, 8)
	banker.AddBank(0, chip0, 0)
	banker.AddBank(1, chip1, 0)
	controlCell.Append(cell.NewBankSwitch(banker))
	controlCell.Write(0, cell.Software)

	// Something else carves a hole in the middle of the banked region.
	overlay := chip.New("overlay", 0x10, 8)
	if err := s.MapChip(0x8400, 0x840F, overlay, 0); err != nil {
		t.Fatal(err)
	}
	if s.DecoderCount() != 3 {
		t.Fatalf("DecoderCount = %d, want 3 before bank switch", s.DecoderCount())
	}

	// Switching banks must tear down the split pieces (and reclaim
	// anything else occupying the banked range) and reinstall one
	// decoder spanning the whole range again.
	controlCell.Write(1, cell.Software)
	if s.DecoderCount() != 1 {
		t.Fatalf("DecoderCount = %d, want 1 (single fresh bank decoder)", s.DecoderCount())
	}
	if !s.Disjoint() {
		t.Fatal("decoders must stay disjoint across a bank switch")
	}
	if v := s.Read(0x8000, tbl); v != 0 {
		t.Errorf("Read(0x8000) after switch = %#x, want 0 (bank1 chip default)", v)
	}
}

func TestBitBanderReadWrite(t *testing.T) {
	errs := &fakeErrs{}
	s := New("bitband", 0, 0x1000, errs)
	tbl := cell.NewTable()
	target := chip.New("sram", 0x10, 32)

	s.MapBitBander(0, 0x1F, target, 0, 32, 1)

	s.Write(5, 1, cell.Software, tbl)
	if v := target.Get(0); v != (1 << 5) {
		t.Errorf("target slot 0 = %#x, want bit 5 set", v)
	}
	if v := s.Read(5, tbl); v != 1 {
		t.Errorf("Read(5) = %d, want 1", v)
	}
	if v := s.Read(6, tbl); v != 0 {
		t.Errorf("Read(6) = %d, want 0 (untouched bit)", v)
	}

	s.Write(5, 0, cell.Software, tbl)
	if v := target.Get(0); v != 0 {
		t.Errorf("target slot 0 after clearing bit 5 = %#x, want 0", v)
	}
}

func TestInvalidAndNonDecodedRouting(t *testing.T) {
	errs := &fakeErrs{}
	s := New("data", 0x1000, 0x1000, errs)
	tbl := cell.NewTable()

	s.Read(0x5000, tbl) // outside [0x1000, 0x2000)
	if len(errs.invalid) != 1 || errs.invalid[0] != 0x5000 {
		t.Fatalf("expected one InvalidAddress(0x5000), got %v", errs.invalid)
	}

	s.Read(0x1500, tbl) // inside range, nothing decoded there
	if len(errs.nonDecoded) != 1 || errs.nonDecoded[0] != 0x1500 {
		t.Fatalf("expected one NonDecoded(0x1500), got %v", errs.nonDecoded)
	}
}

func TestGetCellReturnsSharedDummyWhenUndecoded(t *testing.T) {
	errs := &fakeErrs{}
	s1 := New("a", 0, 0x100, errs)
	s2 := New("b", 0, 0x100, errs)
	tbl := cell.NewTable()

	d1 := s1.GetCell(0x10, tbl)
	d2 := s2.GetCell(0x20, tbl)
	if d1 != d2 {
		t.Error("dummy cell must be a single instance shared across spaces")
	}
}
