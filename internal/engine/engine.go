// Package engine is the ELF x86-64 linker core: it turns a set of parsed
// input objects into a fully laid-out, relocated ELF image (spec.md §2).
//
// The engine is a staged pipeline, not a continuation graph: a struct
// holding the growing state, with one method per stage, each reading the
// fields earlier stages wrote and writing only its own (spec.md §9). There
// are no back-edges and no concurrent mutation (spec.md §5).
package engine

// HashStyle selects which dynamic symbol hash table(s) to emit (spec.md §3).
type HashStyle int

const (
	HashSysV HashStyle = iota
	HashGNU
	HashBoth
)

// Tracer is the TraceSink collaborator (spec.md §6): structured log
// emission the core calls into but does not implement.
type Tracer interface {
	Tracef(format string, args ...any)
	Warnf(format string, args ...any)
}

type noopTracer struct{}

func (noopTracer) Tracef(string, ...any) {}
func (noopTracer) Warnf(string, ...any)  {}

// Options is the configuration consumed by the core (spec.md §3).
type Options struct {
	Shared        bool
	PIE           bool
	DynamicLinker string
	Soname        string
	HashStyle     HashStyle
	Output        string
	Inputs        []*ObjectFile

	// Accepted but not acted on by the core (spec.md §3).
	BuildID    bool
	EHFrameHdr bool
	Emulation  string
	SearchDirs []string

	Tracer Tracer
}

func (o *Options) tracer() Tracer {
	if o.Tracer == nil {
		return noopTracer{}
	}
	return o.Tracer
}

// Engine holds all linker state as it grows through the pipeline stages.
type Engine struct {
	opts Options

	sections     map[string]*Section
	sectionOrder []string // first-seen order; output offsets stay monotonic in this order

	symtab *SymbolTable

	pltDynamicSymbols []DynamicSymbol // imports from consumed shared objects, discovery order

	needed []*NeededEntry

	dynsymOrder []dynsymEntry

	dynamicLink bool // set the moment any shared object is consumed

	// sharedSymbols holds names defined by consumed shared objects, available
	// to satisfy PLT-relative relocations from any input, whatever its
	// position on the command line (spec.md §4.2).
	sharedSymbols map[string]bool

	loadAddress uint64

	// Populated during Reserve/Layout (spec.md §4.4) and consulted by
	// Relocate/Emit. Every section, allocatable or not, lives in the
	// `sections` map above; these fields cover the handful of numbers
	// that aren't properties of any single section.
	sectionIndex map[string]uint16
	sectionAddress map[string]uint64
	shdrOff      uint64
	phdrOff      uint64
	fileSize     uint64

	strtab   *stringTable
	dynstr   *stringTable
	shstrtab *stringTable

	programHeaders []programHeader

	symtabLocalCount int
}

// programHeader is a not-yet-serialized PT_* entry; Offset/Vaddr are filled
// in once layout is known.
type programHeader struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	Vaddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

func newEngine(opts Options) *Engine {
	return &Engine{
		opts:           opts,
		sections:       make(map[string]*Section),
		symtab:         newSymbolTable(),
		sectionIndex:   make(map[string]uint16),
		sectionAddress: make(map[string]uint64),
		sharedSymbols:  make(map[string]bool),
	}
}

// section returns the output section named name, creating it if this is
// the first input to contribute to it (spec.md §4.2 step 2).
func (e *Engine) section(name string) *Section {
	if s, ok := e.sections[name]; ok {
		return s
	}
	s := &Section{Name: name}
	e.sections[name] = s
	e.sectionOrder = append(e.sectionOrder, name)
	return s
}

// Link runs the full pipeline (ingest → parse & accrete → synthesize →
// reserve/layout → relocate → emit) and returns the finished ELF image.
func Link(opts Options) ([]byte, error) {
	e := newEngine(opts)
	tracer := opts.tracer()

	tracer.Tracef("ingesting %d inputs", len(opts.Inputs))
	objs, err := e.ingestAll(opts.Inputs)
	if err != nil {
		return nil, err
	}

	for _, obj := range objs {
		if err := e.accreteOne(obj); err != nil {
			return nil, err
		}
	}
	e.finishAccretion()
	tracer.Tracef("accreted %d output sections", len(e.sectionOrder))

	if e.dynamicLink {
		tracer.Tracef("synthesizing PLT/GOT for %d consumed shared objects", len(e.needed))
		if err := e.synthesize(); err != nil {
			return nil, err
		}
	}

	if err := e.reserve(); err != nil {
		return nil, err
	}
	tracer.Tracef("reserved layout, file size %d bytes", e.fileSize)

	if e.dynamicLink {
		if err := e.finalizeDynamic(); err != nil {
			return nil, err
		}
	}

	if err := e.relocate(); err != nil {
		return nil, err
	}

	return e.emit()
}
