package engine

import dbgelf "debug/elf"

// ingested is one fully classified input, ready for parse & accrete
// (spec.md §4.1). Archive members are expanded and classified individually,
// so by the time ingestAll returns, every element is either a relocatable
// object or a shared object — never an archive.
type ingested struct {
	of    *ObjectFile
	kind  InputKind
	file  *dbgelf.File // nil only unreachable here; archives never reach this struct
}

// ingestAll classifies every top-level input, expanding archives into
// their member objects, in command-line order (spec.md §4.1).
func (e *Engine) ingestAll(inputs []*ObjectFile) ([]*ingested, error) {
	var out []*ingested
	for _, in := range inputs {
		expanded, err := e.ingestOne(in)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

func (e *Engine) ingestOne(of *ObjectFile) ([]*ingested, error) {
	kind, f, err := classify(of)
	if err != nil {
		return nil, err
	}

	if kind != InputArchive {
		return []*ingested{{of: of, kind: kind, file: f}}, nil
	}

	members, err := parseArchive(of)
	if err != nil {
		return nil, err
	}

	var out []*ingested
	for _, m := range members {
		mk, mf, err := classify(m)
		if err != nil {
			return nil, err
		}
		if mk == InputArchive {
			return nil, errf(KindUnsupportedInput, m.Name, "nested archives are not supported")
		}
		out = append(out, &ingested{of: m, kind: mk, file: mf})
	}
	return out, nil
}
