package main

import (
	"fmt"
	"strings"

	"github.com/xyproto/ld67/internal/engine"
)

// itemState is the pair of flags --push-state/--pop-state snapshot:
// whether the next input is linked statically, and whether it may be
// dropped if nothing references it.
type itemState struct {
	static   bool
	asNeeded bool
}

// OptionParser turns argv into engine.Options, the way the teacher's own
// cli.go hand-scans os.Args rather than building a flag.FlagSet — the ld
// surface mixes glued namespecs (-lfoo), short flags (-o out) and
// --long=value flags that don't map cleanly onto the standard library's
// flag package, and no flags library appears anywhere in the example pack.
type OptionParser struct {
	resolver *PathResolver

	state      itemState
	stateStack []itemState

	opts engine.Options
}

func NewOptionParser(resolver *PathResolver) *OptionParser {
	return &OptionParser{resolver: resolver}
}

func (p *OptionParser) Parse(argv []string) (engine.Options, error) {
	for i := 0; i < len(argv); i++ {
		arg := argv[i]

		switch {
		case arg == "-o":
			i++
			if i >= len(argv) {
				return p.opts, fmt.Errorf("-o requires an argument")
			}
			p.opts.Output = argv[i]

		case arg == "-shared" || arg == "--shared":
			p.opts.Shared = true

		case arg == "-pie" || arg == "--pie":
			p.opts.PIE = true

		case arg == "-static" || arg == "--static":
			p.state.static = true

		case arg == "--no-static":
			p.state.static = false

		case arg == "--as-needed":
			p.state.asNeeded = true

		case arg == "--no-as-needed":
			p.state.asNeeded = false

		case arg == "--push-state":
			p.stateStack = append(p.stateStack, p.state)

		case arg == "--pop-state":
			if len(p.stateStack) == 0 {
				return p.opts, fmt.Errorf("--pop-state with no matching --push-state")
			}
			p.state = p.stateStack[len(p.stateStack)-1]
			p.stateStack = p.stateStack[:len(p.stateStack)-1]

		case arg == "-dynamic-linker" || arg == "--dynamic-linker":
			i++
			if i >= len(argv) {
				return p.opts, fmt.Errorf("%s requires an argument", arg)
			}
			p.opts.DynamicLinker = argv[i]
		case strings.HasPrefix(arg, "--dynamic-linker="):
			p.opts.DynamicLinker = strings.TrimPrefix(arg, "--dynamic-linker=")

		case arg == "-soname" || arg == "--soname":
			i++
			if i >= len(argv) {
				return p.opts, fmt.Errorf("%s requires an argument", arg)
			}
			p.opts.Soname = argv[i]
		case strings.HasPrefix(arg, "-soname="), strings.HasPrefix(arg, "--soname="):
			p.opts.Soname = arg[strings.Index(arg, "=")+1:]

		case strings.HasPrefix(arg, "--hash-style="):
			style := strings.TrimPrefix(arg, "--hash-style=")
			hs, err := parseHashStyle(style)
			if err != nil {
				return p.opts, err
			}
			p.opts.HashStyle = hs

		case strings.HasPrefix(arg, "-L"):
			dir := strings.TrimPrefix(arg, "-L")
			if dir == "" {
				i++
				if i >= len(argv) {
					return p.opts, fmt.Errorf("-L requires an argument")
				}
				dir = argv[i]
			}
			p.resolver.SearchDirs = append(p.resolver.SearchDirs, dir)
			p.opts.SearchDirs = append(p.opts.SearchDirs, dir)

		case strings.HasPrefix(arg, "-l"):
			name := strings.TrimPrefix(arg, "-l")
			path, err := p.resolver.Resolve(name, p.state.static)
			if err != nil {
				return p.opts, err
			}
			p.addInput(path)

		case arg == "--build-id":
			p.opts.BuildID = true
		case arg == "--eh-frame-hdr":
			p.opts.EHFrameHdr = true
		case strings.HasPrefix(arg, "-m"):
			emulation := strings.TrimPrefix(arg, "-m")
			if emulation == "" {
				i++
				if i >= len(argv) {
					return p.opts, fmt.Errorf("-m requires an argument")
				}
				emulation = argv[i]
			}
			p.opts.Emulation = emulation

		case strings.HasPrefix(arg, "-"):
			// Accepted-but-unused flags (spec.md §3 Options) fall through
			// here rather than aborting the link.

		default:
			p.addInput(arg)
		}
	}

	return p.opts, nil
}

func (p *OptionParser) addInput(path string) {
	p.opts.Inputs = append(p.opts.Inputs, &engine.ObjectFile{
		Name:     path,
		AsNeeded: p.state.asNeeded,
	})
}

func parseHashStyle(s string) (engine.HashStyle, error) {
	switch s {
	case "sysv":
		return engine.HashSysV, nil
	case "gnu":
		return engine.HashGNU, nil
	case "both":
		return engine.HashBoth, nil
	default:
		return 0, fmt.Errorf("unknown --hash-style %q", s)
	}
}
