package sdproto

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/cwsl/sdgateway/frame"
)

// DemodulateMU decodes a Message-Unsynced frame. Every protocol with a
// nominal clock is a candidate: its bit sequences are bound to concrete
// pattern IDs, assembled into a repetition regex, and every
// non-overlapping match in the data string becomes a candidate message.
func (d *Decoder) DemodulateMU(f *frame.Fields, raw frame.RawFrame) []frame.DecodedMessage {
	rawData := f.Data()
	if rawData == "" {
		d.logf(LevelInfo, "MU demod: missing rawData D=")
		return nil
	}
	d.extractMeta(f, &raw)

	var out []frame.DecodedMessage
	for _, pid := range d.protocols.IDsWith("clockabs") {
		p := d.protocols.Get(pid)
		if !p.Active {
			continue
		}
		d.logf(LevelTrace, "MU demod: checking protocol %s", pid)

		clockAbs := p.ClockAbs
		if clockAbs == 0 {
			continue
		}
		norm := normalizePatterns(f.Patterns, clockAbs)

		currentRaw := rawData
		startStr := ""
		if len(p.Start) > 0 {
			s, ok := d.PatternExists(p.Start, norm, currentRaw)
			if !ok {
				continue
			}
			startStr = s
			idx := strings.Index(currentRaw, startStr)
			if idx < 0 {
				continue
			}
			currentRaw = currentRaw[idx:]
		}

		signalWidth := len(p.One)
		if signalWidth == 0 {
			continue
		}
		binding, ok := d.bindBitPatterns(p, norm, currentRaw)
		if !ok {
			continue
		}

		re, err := d.buildSignalRegex(p, binding, startStr)
		if err != nil {
			d.logf(LevelInfo, "MU demod: invalid regex for %s: %v", pid, err)
			continue
		}

		dispatched := 0
		for _, m := range re.FindAllStringSubmatchIndex(currentRaw, -1) {
			dataPart := currentRaw[m[2]:m[3]]

			numChunks := (len(dataPart) + signalWidth - 1) / signalWidth
			if p.LengthMax >= 0 && numChunks > p.LengthMax {
				continue
			}

			var bitMsg []byte
			for i := 0; i < len(dataPart); i += signalWidth {
				end := i + signalWidth
				if end > len(dataPart) {
					end = len(dataPart)
				}
				chunk := dataPart[i:end]
				if sym, ok := binding.lookup[chunk]; ok && sym != "" {
					bitMsg = append(bitMsg, sym[0])
				} else if p.ReconstructBit {
					if sym, ok := binding.endLookup[chunk]; ok && sym != "" {
						bitMsg = append(bitMsg, sym[0])
					}
				}
			}
			if len(bitMsg) == 0 {
				continue
			}

			msg, emitted := d.finishCandidate(p, bitMsg, raw, clockAbs)
			if !emitted {
				continue
			}
			out = append(out, msg)
			dispatched++
			if dispatched >= maxMUDispatch {
				break
			}
		}
	}
	return out
}

// buildSignalRegex assembles the repeating bit-pattern expression
// "(start)((one|zero|float){length_min,}(tail)?)". When every bound
// chunk has the same length and first symbol the common prefix is
// factored out; with
// a backtracking engine this rewrite avoided catastrophic runtimes, and
// it is kept as a pinned, correctness-preserving form of the pattern.
func (d *Decoder) buildSignalRegex(p *Protocol, b *patternBinding, startStr string) (*regexp.Regexp, error) {
	inner := ""
	factored := false
	if len(b.parts) > 0 && len(b.parts[0]) > 1 {
		sameShape := true
		prefix := b.parts[0][0]
		for _, part := range b.parts {
			if len(part) != len(b.parts[0]) || part[0] != prefix {
				sameShape = false
				break
			}
		}
		if sameShape {
			suffixes := make([]string, len(b.parts))
			for i, part := range b.parts {
				suffixes[i] = regexp.QuoteMeta(part[1:])
			}
			inner = regexp.QuoteMeta(string(prefix)) + "(?:" + strings.Join(suffixes, "|") + ")"
			factored = true
			d.logf(LevelTrace, "MU demod: factored repeating pattern for %s: %s", p.ID, inner)
		}
	}
	if !factored {
		escaped := make([]string, len(b.parts))
		for i, part := range b.parts {
			escaped[i] = regexp.QuoteMeta(part)
		}
		inner = strings.Join(escaped, "|")
	}

	reconstruct := ""
	if p.ReconstructBit && len(b.endLookup) > 0 {
		ends := make([]string, 0, len(b.endLookup))
		for k := range b.endLookup {
			ends = append(ends, regexp.QuoteMeta(k))
		}
		sort.Strings(ends)
		reconstruct = "(?:" + strings.Join(ends, "|") + ")?"
	}

	lengthMin := p.LengthMin
	if lengthMin < 0 {
		lengthMin = 0
	}
	expr := fmt.Sprintf("(?:%s)((?:%s){%d,}%s)", regexp.QuoteMeta(startStr), inner, lengthMin, reconstruct)
	return regexp.Compile(expr)
}
