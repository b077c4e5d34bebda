package sdproto

import (
	"fmt"

	"github.com/cwsl/sdgateway/frame"
)

// maxMUDispatch caps how many repeats of one protocol a single MU line
// may emit, matching the firmware module's default.
const maxMUDispatch = 4

// Decoder runs split frames through the demodulation pipeline. It is
// stateless apart from the read-only catalog and may be shared between
// goroutines.
type Decoder struct {
	protocols *Catalog

	// RFMode restricts MN demodulation to protocols declaring the same
	// receiver mode. Empty means "any".
	RFMode string
}

// NewDecoder creates a decoder over a loaded catalog.
func NewDecoder(c *Catalog) *Decoder {
	return &Decoder{protocols: c}
}

// Protocols exposes the catalog the decoder runs on.
func (d *Decoder) Protocols() *Catalog { return d.protocols }

func (d *Decoder) logf(level int, format string, args ...interface{}) {
	d.protocols.logf(level, format, args...)
}

// Decode demodulates one split frame into zero or more messages. The
// frame type selects the demodulator; unknown types yield nothing.
// Panics from a misbehaving handler are contained here and reported as
// catalog inconsistencies, so a single bad converter cannot take down
// the read loop.
func (d *Decoder) Decode(f *frame.Fields, raw frame.RawFrame) (msgs []frame.DecodedMessage) {
	defer func() {
		if r := recover(); r != nil {
			d.logf(LevelError, "decoder: %s handler panicked: %v", f.Type, r)
			msgs = nil
		}
	}()

	switch f.Type {
	case "MS":
		return d.DemodulateMS(f, raw)
	case "MU":
		return d.DemodulateMU(f, raw)
	case "MC":
		return d.DemodulateMC(f, raw)
	case "MN":
		return d.DemodulateMN(f, raw)
	default:
		d.logf(LevelTrace, "decoder: no demodulator for %s", f.Type)
		return nil
	}
}

// extractMeta pulls RSSI and AFC out of a split frame and attaches the
// converted values to the raw frame.
func (d *Decoder) extractMeta(f *frame.Fields, raw *frame.RawFrame) {
	if r, ok := f.UintField("R"); ok {
		v := frame.CalcRSSI(r)
		raw.RSSI = &v
	}
	if a, ok := f.UintField("F"); ok {
		var v float64
		if f.Type == "MN" {
			v = frame.CalcAFCMN(a)
		} else {
			v = frame.CalcAFC(a)
		}
		raw.FreqAFC = &v
	}
}

// applyPostDemodulation runs the protocol's post-demodulation function,
// if any, over the candidate bit vector. ok=false drops the candidate.
// Bit vectors still containing 'F' bits are only passed to functions
// declared to accept them.
func (d *Decoder) applyPostDemodulation(p *Protocol, bits []byte) ([]byte, bool) {
	if p.PostDemodulation == "" {
		return bits, true
	}
	entry, err := resolvePostDemod(p.PostDemodulation)
	if err != nil {
		d.logf(LevelError, "protocol %s: %v", p.ID, err)
		return nil, false
	}

	ints := make([]int, len(bits))
	for i, b := range bits {
		switch b {
		case '0':
			ints[i] = 0
		case '1':
			ints[i] = 1
		default:
			if !entry.acceptsNonBinary {
				d.logf(LevelTrace, "protocol %s: non-binary bit %q, dropping candidate", p.ID, b)
				return nil, false
			}
			ints[i] = -1
		}
	}

	rc, ret := entry.fn(d, p.Name, ints)
	if rc < 1 {
		d.logf(LevelInfo, "protocol %s: post-demodulation rejected candidate", p.ID)
		return nil, false
	}
	out := make([]byte, len(ret))
	for i, b := range ret {
		out[i] = byte('0' + b)
	}
	return out, true
}

// formatPayload renders the padded bit vector as binary or hex per the
// descriptor and wraps it in preamble/postamble.
func (d *Decoder) formatPayload(p *Protocol, bits []byte) (payload string, bitLength int, ok bool) {
	bitStr := string(bits)

	var dmsg string
	if p.DispatchBin {
		dmsg = bitStr
	} else {
		hex, err := BinStr2HexStr(bitStr)
		if err != nil {
			d.logf(LevelTrace, "protocol %s: %v", p.ID, err)
			return "", 0, false
		}
		if p.RemoveZero {
			hex = trimLeadingZeros(hex)
		}
		dmsg = hex
	}

	return fmt.Sprintf("%s%s%s", p.Preamble, dmsg, p.Postamble), len(bitStr), true
}

func trimLeadingZeros(s string) string {
	i := 0
	for i < len(s) && s[i] == '0' {
		i++
	}
	return s[i:]
}
