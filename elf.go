package sdbgo

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"sort"

	"golang.org/x/exp/mmap"
)

// ELF owns a read-only memory mapping of an executable and the parsed
// section/symbol indices needed to translate addresses and resolve
// symbols. The memory mapping uses golang.org/x/exp/mmap
// (debug/elf.NewFile only needs an io.ReaderAt, which mmap.ReaderAt is).
type ELF struct {
	path    string
	mapping *mmap.ReaderAt
	file    *elf.File

	sectionsByName map[string]*elf.Section
	symbolsByName  map[string][]elf.Symbol
	symbolRanges   []symbolRange

	shstrtab []byte

	loadBias    VirtAddr
	hasLoadBias bool
}

type symbolRange struct {
	start, end uint64
	sym        elf.Symbol
}

// Open memory-maps path, parses its ELF header and section/symbol
// tables, and builds the lookup indices used for address translation and
// symbol resolution. Construction fails atomically: on any error the
// returned *ELF is nil and unusable.
func Open(path string) (*ELF, error) {
	mapping, err := mmap.Open(path)
	if err != nil {
		return nil, wrapf(err, "open elf %s", path)
	}

	file, err := elf.NewFile(mapping)
	if err != nil {
		mapping.Close()
		return nil, wrapf(err, "parse elf header %s", path)
	}

	e := &ELF{
		path:           path,
		mapping:        mapping,
		file:           file,
		sectionsByName: map[string]*elf.Section{},
		symbolsByName:  map[string][]elf.Symbol{},
	}

	if err := e.readShStrTab(); err != nil {
		mapping.Close()
		return nil, wrapf(err, "read section header string table %s", path)
	}
	e.buildSectionIndex()
	e.buildSymbolIndex()

	return e, nil
}

// Close releases the underlying memory mapping.
func (e *ELF) Close() error { return e.mapping.Close() }

func (e *ELF) Path() string { return e.path }

// Header returns the parsed ELF file header.
func (e *ELF) Header() elf.FileHeader { return e.file.FileHeader }

// readShStrTab locates the section header string table by re-reading the
// raw e_shoff/e_shstrndx fields debug/elf does not expose, so String can
// answer arbitrary string-table indices rather than only the ones
// debug/elf already resolved into Section.Name.
func (e *ELF) readShStrTab() error {
	var ident [64]byte
	if _, err := e.mapping.ReadAt(ident[:], 0); err != nil {
		return err
	}
	if ident[0] != 0x7f || ident[1] != 'E' || ident[2] != 'L' || ident[3] != 'F' {
		return fmt.Errorf("bad ELF magic")
	}
	if ident[4] != 2 { // ELFCLASS64
		return fmt.Errorf("unsupported ELF class: only 64-bit is supported")
	}
	if ident[5] != 1 { // ELFDATA2LSB
		return fmt.Errorf("unsupported ELF byte order: only little-endian is supported")
	}

	shoff := binary.LittleEndian.Uint64(ident[40:48])
	shentsize := binary.LittleEndian.Uint16(ident[58:60])
	shnum := binary.LittleEndian.Uint16(ident[60:62])
	shstrndx := binary.LittleEndian.Uint16(ident[62:64])
	if shstrndx >= shnum {
		return fmt.Errorf("shstrndx %d out of range (shnum=%d)", shstrndx, shnum)
	}

	shdrOff := shoff + uint64(shstrndx)*uint64(shentsize)
	var shdr [64]byte
	if _, err := e.mapping.ReadAt(shdr[:], int64(shdrOff)); err != nil {
		return err
	}
	strOff := binary.LittleEndian.Uint64(shdr[24:32])
	strSize := binary.LittleEndian.Uint64(shdr[32:40])

	buf := make([]byte, strSize)
	if _, err := e.mapping.ReadAt(buf, int64(strOff)); err != nil {
		return err
	}
	e.shstrtab = buf
	return nil
}

// String returns the NUL-terminated string starting at byte index within
// the section header string table.
func (e *ELF) String(index int) (string, error) {
	if index < 0 || index >= len(e.shstrtab) {
		return "", newError("string table lookup", fmt.Errorf("index %d out of range", index))
	}
	end := index
	for end < len(e.shstrtab) && e.shstrtab[end] != 0 {
		end++
	}
	return string(e.shstrtab[index:end]), nil
}

func (e *ELF) buildSectionIndex() {
	for _, s := range e.file.Sections {
		if _, exists := e.sectionsByName[s.Name]; !exists {
			e.sectionsByName[s.Name] = s
		}
	}
}

func (e *ELF) buildSymbolIndex() {
	var all []elf.Symbol
	if syms, err := e.file.Symbols(); err == nil {
		all = append(all, syms...)
	}
	if dynsyms, err := e.file.DynamicSymbols(); err == nil {
		all = append(all, dynsyms...)
	}

	for _, sym := range all {
		if sym.Name == "" {
			continue
		}
		e.symbolsByName[sym.Name] = append(e.symbolsByName[sym.Name], sym)
		if sym.Size > 0 {
			e.symbolRanges = append(e.symbolRanges, symbolRange{
				start: sym.Value,
				end:   sym.Value + sym.Size,
				sym:   sym,
			})
		}
	}

	sort.SliceStable(e.symbolRanges, func(i, j int) bool {
		return e.symbolRanges[i].start < e.symbolRanges[j].start
	})
}

// SectionByName returns the section header named name, if any.
func (e *ELF) SectionByName(name string) (*elf.Section, bool) {
	s, ok := e.sectionsByName[name]
	return s, ok
}

// SectionContents returns the raw bytes of section name, or nil if it
// does not exist.
func (e *ELF) SectionContents(name string) []byte {
	s, ok := e.sectionsByName[name]
	if !ok {
		return nil
	}
	data, err := s.Data()
	if err != nil {
		return nil
	}
	return data
}

// SectionStartFileAddr returns the file address of the start of section
// name.
func (e *ELF) SectionStartFileAddr(name string) (FileAddr, bool) {
	s, ok := e.sectionsByName[name]
	if !ok {
		return FileAddr{}, false
	}
	return NewFileAddr(e, s.Addr), true
}

// SectionContainingFileAddr returns the section whose [Addr, Addr+Size)
// half-open range contains addr, if any.
func (e *ELF) SectionContainingFileAddr(addr uint64) *elf.Section {
	for _, s := range e.file.Sections {
		if s.Addr == 0 && s.Size == 0 {
			continue
		}
		if addr >= s.Addr && addr < s.Addr+s.Size {
			return s
		}
	}
	return nil
}

// SectionContainingVirtAddr converts addr to a file address using the
// current load bias and looks up the containing section.
func (e *ELF) SectionContainingVirtAddr(addr VirtAddr) *elf.Section {
	if !e.hasLoadBias {
		return nil
	}
	fileAddr := uint64(addr) - uint64(e.loadBias)
	return e.SectionContainingFileAddr(fileAddr)
}

// LoadBias returns the delta between link-time and run-time addresses,
// zero until NotifyLoaded is called.
func (e *ELF) LoadBias() VirtAddr { return e.loadBias }

// NotifyLoaded records where the loader actually placed this image.
func (e *ELF) NotifyLoaded(addr VirtAddr) {
	e.loadBias = addr
	e.hasLoadBias = true
}

// SymbolsByName returns every symbol table entry named name.
func (e *ELF) SymbolsByName(name string) []elf.Symbol {
	return e.symbolsByName[name]
}

// SymbolAtFileAddr returns the symbol whose st_value exactly equals addr.
func (e *ELF) SymbolAtFileAddr(addr uint64) (elf.Symbol, bool) {
	for _, r := range e.symbolRanges {
		if r.start == addr {
			return r.sym, true
		}
	}
	for _, syms := range e.symbolsByName {
		for _, s := range syms {
			if s.Value == addr {
				return s, true
			}
		}
	}
	return elf.Symbol{}, false
}

// SymbolAtVirtAddr converts addr through the current load bias first.
func (e *ELF) SymbolAtVirtAddr(addr VirtAddr) (elf.Symbol, bool) {
	if !e.hasLoadBias {
		return elf.Symbol{}, false
	}
	return e.SymbolAtFileAddr(uint64(addr) - uint64(e.loadBias))
}

// SymbolContainingFileAddr returns the symbol whose
// [st_value, st_value+st_size) range contains addr.
func (e *ELF) SymbolContainingFileAddr(addr uint64) (elf.Symbol, bool) {
	idx := sort.Search(len(e.symbolRanges), func(i int) bool {
		return e.symbolRanges[i].end > addr
	})
	if idx < len(e.symbolRanges) && e.symbolRanges[idx].start <= addr {
		return e.symbolRanges[idx].sym, true
	}
	return elf.Symbol{}, false
}

// SymbolContainingVirtAddr converts addr through the current load bias
// first.
func (e *ELF) SymbolContainingVirtAddr(addr VirtAddr) (elf.Symbol, bool) {
	if !e.hasLoadBias {
		return elf.Symbol{}, false
	}
	return e.SymbolContainingFileAddr(uint64(addr) - uint64(e.loadBias))
}
