package sdproto

import (
	"github.com/cwsl/sdgateway/frame"
)

// DemodulateMC decodes a Manchester frame. The device has already
// demodulated the pulses; the frame carries the bit content as hex (D),
// the reference clock (C) and the bit count (L). Every protocol whose
// method resolves to a Manchester handler is a candidate; length bounds
// are enforced both before and inside the handler.
func (d *Decoder) DemodulateMC(f *frame.Fields, raw frame.RawFrame) []frame.DecodedMessage {
	rawHex := f.Data()
	if rawHex == "" {
		d.logf(LevelInfo, "MC demod: missing rawData D=")
		return nil
	}
	clock, ok := f.UintField("C")
	if !ok {
		d.logf(LevelInfo, "MC demod: invalid clock C=%q", f.KV["C"])
		return nil
	}
	mcBitNum, ok := f.UintField("L")
	if !ok {
		d.logf(LevelInfo, "MC demod: invalid bit count L=%q", f.KV["L"])
		return nil
	}

	allBits, err := HexStr2BinStr(rawHex)
	if err != nil {
		d.logf(LevelInfo, "MC demod: non-hexadecimal rawData: %v", err)
		return nil
	}
	if mcBitNum < len(allBits) {
		allBits = allBits[:mcBitNum]
	} else {
		mcBitNum = len(allBits)
	}
	d.extractMeta(f, &raw)

	var out []frame.DecodedMessage
	for _, pid := range d.protocols.IDsWith("method") {
		p := d.protocols.Get(pid)
		if !p.Active || p.Has("modulation") {
			continue
		}
		handler, err := resolveMC(p.Method)
		if err != nil {
			// MN converter names also live in the method attribute;
			// only true unknowns are catalog inconsistencies.
			if _, mnErr := resolveMN(p.Method); mnErr != nil {
				d.logf(LevelError, "MC demod: protocol %s: %v", pid, err)
			}
			continue
		}

		if p.LengthMin >= 0 && mcBitNum < p.LengthMin {
			continue
		}
		if p.LengthMax >= 0 && mcBitNum > p.LengthMax {
			continue
		}

		rc, result := handler(d, p.Name, allBits, pid, mcBitNum)
		if rc != 1 {
			if result != "" {
				d.logf(LevelInfo, "MC demod: protocol %s rejected: %s", pid, result)
			}
			continue
		}

		out = append(out, frame.DecodedMessage{
			ProtocolID: pid,
			Payload:    p.Preamble + result + p.Postamble,
			Raw:        raw,
			Metadata: frame.Metadata{
				BitLength: mcBitNum,
				RSSI:      raw.RSSI,
				FreqAFC:   raw.FreqAFC,
				Clock:     float64(clock),
			},
		})
	}
	return out
}
