package frame

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseError reports a malformed canonical frame. The pipeline treats
// it as "drop this line".
type ParseError struct {
	Reason string
	Line   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("frame parse error: %s in %q", e.Reason, e.Line)
}

// Fields is a canonical frame split into its typed components.
type Fields struct {
	Type     string            // MS, MU, MC or MN (MO is normalized to MS)
	Patterns map[int]float64   // P0..P7 pulse values in µs
	KV       map[string]string // remaining K=V fields (D, CP, SP, C, L, R, F, M, ...)
	Flags    map[string]bool   // bare tokens the firmware appends (O, o, e, p, m0..)
}

var (
	keyRe   = regexp.MustCompile(`^[A-Z]{1,2}$`)
	valueRe = regexp.MustCompile(`^[-+]?[0-9A-Fa-f]+$`)
	flagRe  = regexp.MustCompile(`^(?:[Oo]|e|p|m[0-9])$`)

	// Structural validation for MU frames. The firmware's MU format is
	// strict enough to express as a single shape; the D= presence check
	// is applied separately because RE2 has no lookahead.
	muShapeRe = regexp.MustCompile(`^MU;(?:P[0-7]=-?[0-9]{1,5};){2,8}(?:(?:D=[0-9]{2,};)|(?:CP=[0-9];)|(?:R=[0-9]+;)|(?:O;)|(?:e;)|(?:p;)|(?:w=[0-9];))*$`)
	muDataRe  = regexp.MustCompile(`D=[0-9]+`)
)

// Split parses a canonical frame "TYPE;K1=V1;...;" into Fields.
func Split(payload string) (*Fields, error) {
	parts := strings.Split(payload, ";")
	if len(parts) < 2 {
		return nil, &ParseError{Reason: "no fields", Line: payload}
	}

	typ := strings.ToUpper(parts[0])
	switch typ {
	case "MS", "MU", "MC", "MN":
	case "MO":
		typ = "MS"
	default:
		return nil, &ParseError{Reason: "unknown message type " + parts[0], Line: payload}
	}

	f := &Fields{
		Type:     typ,
		Patterns: make(map[int]float64),
		KV:       make(map[string]string),
		Flags:    make(map[string]bool),
	}

	for _, part := range parts[1:] {
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			if !flagRe.MatchString(part) {
				return nil, &ParseError{Reason: "stray token " + part, Line: payload}
			}
			if f.Flags[part] {
				return nil, &ParseError{Reason: "duplicate flag " + part, Line: payload}
			}
			f.Flags[part] = true
			continue
		}

		key, value := part[:eq], part[eq+1:]
		if key == "w" {
			// Firmware appends w=<digit> status markers.
			if len(value) != 1 || value[0] < '0' || value[0] > '9' {
				return nil, &ParseError{Reason: "invalid w marker", Line: payload}
			}
			if f.Flags["w"+value] {
				return nil, &ParseError{Reason: "duplicate w marker", Line: payload}
			}
			f.Flags["w"+value] = true
			continue
		}
		isPattern := len(key) == 2 && key[0] == 'P' && key[1] >= '0' && key[1] <= '7'
		if !isPattern && !keyRe.MatchString(key) {
			return nil, &ParseError{Reason: "invalid key " + key, Line: payload}
		}
		if !valueRe.MatchString(value) {
			return nil, &ParseError{Reason: "invalid value for " + key, Line: payload}
		}

		if isPattern {
			idx := int(key[1] - '0')
			if _, dup := f.Patterns[idx]; dup {
				return nil, &ParseError{Reason: "duplicate pattern " + key, Line: payload}
			}
			v, err := strconv.Atoi(value)
			if err != nil {
				return nil, &ParseError{Reason: "non-numeric pattern " + key, Line: payload}
			}
			f.Patterns[idx] = float64(v)
			continue
		}

		if _, dup := f.KV[key]; dup {
			return nil, &ParseError{Reason: "duplicate key " + key, Line: payload}
		}
		f.KV[key] = value
	}

	if typ == "MU" {
		if !muShapeRe.MatchString(payload) || !muDataRe.MatchString(payload) {
			return nil, &ParseError{Reason: "MU structure check failed", Line: payload}
		}
	}

	return f, nil
}

// Data returns the raw data string (D field).
func (f *Fields) Data() string { return f.KV["D"] }

// UintField parses a decimal unsigned field like CP, SP, R, L or C.
// ok is false when the field is absent or not a plain number.
func (f *Fields) UintField(key string) (int, bool) {
	v, present := f.KV[key]
	if !present || v == "" {
		return 0, false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
