package sdproto

import (
	"math"
	"strings"

	"github.com/cwsl/sdgateway/frame"
)

// bit symbols produced by the pattern binding.
var symbolFor = map[string]string{
	"sync":  "",
	"one":   "1",
	"zero":  "0",
	"float": "F",
}

// msClockTolerance is the allowed deviation between a protocol's
// nominal clock and the clock derived from the frame.
const msClockTolerance = 0.3

// normalizePatterns divides every pattern value by the reference clock
// and rounds to one decimal, the domain protocol descriptors use.
func normalizePatterns(patterns map[int]float64, clock float64) map[int]float64 {
	norm := make(map[int]float64, len(patterns))
	for idx, v := range patterns {
		norm[idx] = math.Round(v/clock*10) / 10
	}
	return norm
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// patternBinding is the result of binding one protocol's symbolic pulse
// sequences to concrete pattern IDs for a frame.
type patternBinding struct {
	lookup    map[string]string // concrete chunk -> bit symbol
	endLookup map[string]string // chunk minus last symbol -> bit symbol (reconstructBit)
	parts     []string          // concrete chunks in one/zero/float order
}

// bindBitPatterns matches the one/zero/float sequences of a protocol
// against the normalized patterns and raw data. The float sequence is
// optional; a missing one/zero that the protocol defines fails the
// binding.
func (d *Decoder) bindBitPatterns(p *Protocol, norm map[int]float64, rawData string) (*patternBinding, bool) {
	b := &patternBinding{
		lookup:    make(map[string]string),
		endLookup: make(map[string]string),
	}
	for _, key := range []string{"one", "zero", "float"} {
		var search []float64
		switch key {
		case "one":
			search = p.One
		case "zero":
			search = p.Zero
		case "float":
			search = p.Float
		}
		if len(search) == 0 {
			continue
		}
		pstr, ok := d.PatternExists(search, norm, rawData)
		if !ok {
			if key != "float" {
				return nil, false
			}
			continue
		}
		b.lookup[pstr] = symbolFor[key]
		if len(pstr) > 0 {
			short := pstr[:len(pstr)-1]
			if _, exists := b.endLookup[short]; !exists {
				b.endLookup[short] = symbolFor[key]
			}
		}
		b.parts = append(b.parts, pstr)
	}
	if len(b.parts) == 0 {
		return nil, false
	}
	return b, true
}

// DemodulateMS decodes a Message-Synced frame: patterns are normalized
// by the clock pulse the frame names in CP, the protocol's sync
// sequence locates the message start, and the data string after it is
// walked in signal-width chunks.
func (d *Decoder) DemodulateMS(f *frame.Fields, raw frame.RawFrame) []frame.DecodedMessage {
	rawData := f.Data()
	if !allDigits(rawData) {
		d.logf(LevelInfo, "MS demod: invalid rawData D=%q", rawData)
		return nil
	}
	clockIdx, ok := f.UintField("CP")
	if !ok {
		d.logf(LevelInfo, "MS demod: invalid CP=%q", f.KV["CP"])
		return nil
	}
	if _, ok := f.UintField("SP"); !ok {
		d.logf(LevelInfo, "MS demod: invalid SP=%q", f.KV["SP"])
		return nil
	}
	if v, present := f.KV["R"]; present && !allDigits(v) {
		d.logf(LevelInfo, "MS demod: invalid RSSI R=%q", v)
		return nil
	}

	clockVal, ok := f.Patterns[clockIdx]
	if !ok {
		return nil
	}
	clockAbs := math.Abs(clockVal)
	if clockAbs == 0 {
		return nil
	}
	norm := normalizePatterns(f.Patterns, clockAbs)
	d.extractMeta(f, &raw)

	var out []frame.DecodedMessage
	for _, pid := range d.protocols.IDsWith("sync") {
		p := d.protocols.Get(pid)
		if !p.Active {
			continue
		}
		if p.ClockAbs > 0 && math.Abs(p.ClockAbs-clockAbs) > clockAbs*msClockTolerance {
			continue
		}
		signalWidth := len(p.One)
		if signalWidth == 0 {
			continue
		}

		syncStr, ok := d.PatternExists(p.Sync, norm, rawData)
		if !ok {
			continue
		}
		idx := strings.Index(rawData, syncStr)
		if idx < 0 {
			continue
		}
		messageStart := idx + len(syncStr)

		if p.LengthMin >= 0 {
			bitLength := (len(rawData) - messageStart) / signalWidth
			if bitLength < p.LengthMin {
				continue
			}
		}

		binding, ok := d.bindBitPatterns(p, norm, rawData)
		if !ok {
			continue
		}
		if _, exists := binding.lookup[syncStr]; !exists {
			binding.lookup[syncStr] = ""
		}

		var bitMsg []byte
	walk:
		for i := messageStart; i < len(rawData); i += signalWidth {
			end := i + signalWidth
			if end > len(rawData) {
				end = len(rawData)
			}
			chunk := rawData[i:end]
			sym, present := binding.lookup[chunk]
			switch {
			case present:
				if sym != "" {
					bitMsg = append(bitMsg, sym[0])
				}
			case p.ReconstructBit:
				check := chunk
				if len(chunk) == signalWidth {
					check = chunk[:len(chunk)-1]
				}
				if sym, ok := binding.endLookup[check]; ok && sym != "" {
					bitMsg = append(bitMsg, sym[0])
				} else {
					break walk
				}
			default:
				break walk
			}
		}
		if len(bitMsg) == 0 {
			continue
		}
		if ok, _ := p.LengthInRange(len(bitMsg)); !ok {
			continue
		}

		msg, emitted := d.finishCandidate(p, bitMsg, raw, clockAbs)
		if emitted {
			out = append(out, msg)
		}
	}
	return out
}

// finishCandidate runs the shared tail of the MS/MU pipeline: padding,
// post-demodulation, payload formatting and the modulematch gate.
func (d *Decoder) finishCandidate(p *Protocol, bitMsg []byte, raw frame.RawFrame, clock float64) (frame.DecodedMessage, bool) {
	for len(bitMsg)%p.PaddingBits != 0 {
		bitMsg = append(bitMsg, '0')
	}
	bitMsg, ok := d.applyPostDemodulation(p, bitMsg)
	if !ok {
		return frame.DecodedMessage{}, false
	}
	payload, bitLength, ok := d.formatPayload(p, bitMsg)
	if !ok {
		return frame.DecodedMessage{}, false
	}
	if p.ModuleMatch != nil && !p.ModuleMatch.MatchString(payload) {
		return frame.DecodedMessage{}, false
	}
	return frame.DecodedMessage{
		ProtocolID: p.ID,
		Payload:    payload,
		Raw:        raw,
		Metadata: frame.Metadata{
			BitLength: bitLength,
			RSSI:      raw.RSSI,
			FreqAFC:   raw.FreqAFC,
			Clock:     clock,
		},
	}, true
}
