// Package sdproto implements the SIGNALduino protocol catalog and the
// decoding pipeline that turns split frames into decoded messages:
// pattern matching, the MS/MU/MC/MN demodulators, Manchester handlers,
// post-demodulation validators and the MN converter library.
package sdproto

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Log levels used by the catalog log sink.
const (
	LevelError   = 1
	LevelWarn    = 2
	LevelInfo    = 3
	LevelVerbose = 4
	LevelTrace   = 5
)

// LogFunc receives log lines from the decoding core. It must be
// reentrant; it is installed once at startup.
type LogFunc func(message string, level int)

//go:embed protocols.json
var defaultCatalogJSON []byte

// rawDescriptor is the wire form of a catalog entry. Pointer fields
// distinguish "absent" from zero values; the derived Protocol applies
// the defaults.
type rawDescriptor struct {
	Name             *string   `json:"name"`
	ClientModule     string    `json:"clientmodule"`
	Comment          string    `json:"comment"`
	ClockAbs         *float64  `json:"clockabs"`
	Sync             []float64 `json:"sync"`
	Start            []float64 `json:"start"`
	One              []float64 `json:"one"`
	Zero             []float64 `json:"zero"`
	Float            []float64 `json:"float"`
	LengthMin        *int      `json:"length_min"`
	LengthMax        *int      `json:"length_max"`
	Preamble         string    `json:"preamble"`
	Postamble        string    `json:"postamble"`
	PaddingBits      *int      `json:"paddingbits"`
	DispatchBin      bool      `json:"dispatchBin"`
	RemoveZero       bool      `json:"remove_zero"`
	ReconstructBit   bool      `json:"reconstructBit"`
	ModuleMatch      string    `json:"modulematch"`
	PostDemodulation string    `json:"postDemodulation"`
	Method           string    `json:"method"`
	Modulation       string    `json:"modulation"`
	RFMode           string    `json:"rfmode"`
	RegexMatch       string    `json:"regexMatch"`
	Active           *bool     `json:"active"`
}

type catalogFile struct {
	Protocols map[string]rawDescriptor `json:"protocols"`
}

// Protocol is an immutable catalog entry. LengthMin and LengthMax are
// -1 when the descriptor does not bound the message length.
type Protocol struct {
	ID               string
	Name             string
	ClientModule     string
	Comment          string
	ClockAbs         float64
	Sync             []float64
	Start            []float64
	One              []float64
	Zero             []float64
	Float            []float64
	LengthMin        int
	LengthMax        int
	Preamble         string
	Postamble        string
	PaddingBits      int
	DispatchBin      bool
	RemoveZero       bool
	ReconstructBit   bool
	ModuleMatch      *regexp.Regexp
	PostDemodulation string
	Method           string
	Modulation       string
	RFMode           string
	RegexMatch       *regexp.Regexp
	Active           bool

	defined map[string]bool
}

// Has reports whether the raw descriptor defined the given attribute.
func (p *Protocol) Has(attr string) bool { return p.defined[attr] }

// LengthInRange checks a message length against the protocol's bounds.
// The reason is one of "message is too short" / "message is too long".
func (p *Protocol) LengthInRange(length int) (bool, string) {
	if p.LengthMin >= 0 && length < p.LengthMin {
		return false, "message is too short"
	}
	if p.LengthMax >= 0 && length > p.LengthMax {
		return false, "message is too long"
	}
	return true, ""
}

// Catalog is the read-only protocol registry. After Load returns it is
// never mutated; it may be shared freely between goroutines.
type Catalog struct {
	protocols map[string]*Protocol
	ids       []string
	logFn     LogFunc
}

// Load parses a catalog JSON document and derives the immutable
// protocol set with defaults applied (active=true, synthetic name,
// paddingbits=4, unset length bounds as -1).
func Load(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if file.Protocols == nil {
		return nil, fmt.Errorf("catalog: missing protocols object")
	}

	c := &Catalog{protocols: make(map[string]*Protocol, len(file.Protocols))}
	seen := make(map[string]string, len(file.Protocols))
	for id, raw := range file.Protocols {
		lower := strings.ToLower(id)
		if prev, dup := seen[lower]; dup {
			return nil, fmt.Errorf("catalog: ids %q and %q collide", prev, id)
		}
		seen[lower] = id

		p, err := deriveProtocol(id, raw)
		if err != nil {
			return nil, err
		}
		c.protocols[id] = p
		c.ids = append(c.ids, id)
	}
	sort.Slice(c.ids, func(i, j int) bool { return idLess(c.ids[i], c.ids[j]) })
	return c, nil
}

// LoadDefault loads the catalog embedded in the binary.
func LoadDefault() (*Catalog, error) {
	return Load(defaultCatalogJSON)
}

func deriveProtocol(id string, raw rawDescriptor) (*Protocol, error) {
	p := &Protocol{
		ID:               id,
		ClientModule:     raw.ClientModule,
		Comment:          raw.Comment,
		Sync:             raw.Sync,
		Start:            raw.Start,
		One:              raw.One,
		Zero:             raw.Zero,
		Float:            raw.Float,
		LengthMin:        -1,
		LengthMax:        -1,
		Preamble:         raw.Preamble,
		Postamble:        raw.Postamble,
		PaddingBits:      4,
		DispatchBin:      raw.DispatchBin,
		RemoveZero:       raw.RemoveZero,
		ReconstructBit:   raw.ReconstructBit,
		PostDemodulation: raw.PostDemodulation,
		Method:           raw.Method,
		Modulation:       raw.Modulation,
		RFMode:           raw.RFMode,
		Active:           true,
		defined:          make(map[string]bool),
	}

	p.Name = "Protocol_" + id
	if raw.Name != nil {
		p.Name = *raw.Name
	}
	if raw.ClockAbs != nil {
		p.ClockAbs = *raw.ClockAbs
	}
	if raw.LengthMin != nil {
		p.LengthMin = *raw.LengthMin
	}
	if raw.LengthMax != nil {
		p.LengthMax = *raw.LengthMax
	}
	if raw.PaddingBits != nil && *raw.PaddingBits > 0 {
		p.PaddingBits = *raw.PaddingBits
	}
	if raw.Active != nil {
		p.Active = *raw.Active
	}
	if raw.ModuleMatch != "" {
		re, err := regexp.Compile(raw.ModuleMatch)
		if err != nil {
			return nil, fmt.Errorf("catalog: protocol %s modulematch: %w", id, err)
		}
		p.ModuleMatch = re
	}
	if raw.RegexMatch != "" {
		re, err := regexp.Compile(raw.RegexMatch)
		if err != nil {
			return nil, fmt.Errorf("catalog: protocol %s regexMatch: %w", id, err)
		}
		p.RegexMatch = re
	}

	mark := func(attr string, present bool) {
		if present {
			p.defined[attr] = true
		}
	}
	mark("name", raw.Name != nil)
	mark("clientmodule", raw.ClientModule != "")
	mark("comment", raw.Comment != "")
	mark("clockabs", raw.ClockAbs != nil)
	mark("sync", len(raw.Sync) > 0)
	mark("start", len(raw.Start) > 0)
	mark("one", len(raw.One) > 0)
	mark("zero", len(raw.Zero) > 0)
	mark("float", len(raw.Float) > 0)
	mark("length_min", raw.LengthMin != nil)
	mark("length_max", raw.LengthMax != nil)
	mark("preamble", raw.Preamble != "")
	mark("postamble", raw.Postamble != "")
	mark("paddingbits", raw.PaddingBits != nil)
	mark("dispatchBin", raw.DispatchBin)
	mark("remove_zero", raw.RemoveZero)
	mark("reconstructBit", raw.ReconstructBit)
	mark("modulematch", raw.ModuleMatch != "")
	mark("postDemodulation", raw.PostDemodulation != "")
	mark("method", raw.Method != "")
	mark("modulation", raw.Modulation != "")
	mark("rfmode", raw.RFMode != "")
	mark("regexMatch", raw.RegexMatch != "")

	return p, nil
}

// idLess orders protocol IDs numerically where possible ("7" < "10" <
// "10.1" < "119"), falling back to string order for opaque IDs.
func idLess(a, b string) bool {
	fa, ea := strconv.ParseFloat(a, 64)
	fb, eb := strconv.ParseFloat(b, 64)
	switch {
	case ea == nil && eb == nil:
		if fa != fb {
			return fa < fb
		}
		return a < b
	case ea == nil:
		return true
	case eb == nil:
		return false
	default:
		return a < b
	}
}

// Exists reports whether the catalog contains the given protocol ID.
func (c *Catalog) Exists(id string) bool {
	_, ok := c.protocols[id]
	return ok
}

// Get returns the protocol for id, or nil when unknown.
func (c *Catalog) Get(id string) *Protocol {
	return c.protocols[id]
}

// IDs returns all protocol IDs in stable order.
func (c *Catalog) IDs() []string {
	return c.ids
}

// IDsWith returns the IDs of every protocol that defines the given
// attribute, in stable order. Demodulators use this to enumerate their
// candidates (MS: sync, MU: clockabs, MN: modulation, MC: method).
func (c *Catalog) IDsWith(attr string) []string {
	var out []string
	for _, id := range c.ids {
		if c.protocols[id].Has(attr) {
			out = append(out, id)
		}
	}
	return out
}

// SetLogFunc installs the log sink. Install once at startup, before
// decoding begins.
func (c *Catalog) SetLogFunc(fn LogFunc) {
	c.logFn = fn
}

func (c *Catalog) logf(level int, format string, args ...interface{}) {
	if c.logFn != nil {
		c.logFn(fmt.Sprintf(format, args...), level)
	}
}
