package sdproto

import (
	"github.com/cwsl/sdgateway/frame"
)

// DemodulateMN decodes a wire-format frame the device captured in
// packet mode (e.g. CC1101 FIFO). Protocols declaring a modulation are
// candidates, gated by the receiver's rfmode, the hex length bounds and
// an optional payload regex; the protocol method, when present,
// transforms the payload.
func (d *Decoder) DemodulateMN(f *frame.Fields, raw frame.RawFrame) []frame.DecodedMessage {
	hexData := f.Data()
	if hexData == "" {
		d.logf(LevelInfo, "MN demod: missing rawData D=")
		return nil
	}
	d.extractMeta(f, &raw)

	var out []frame.DecodedMessage
	for _, pid := range d.protocols.IDsWith("modulation") {
		p := d.protocols.Get(pid)
		if !p.Active {
			continue
		}
		if p.RFMode == "" {
			d.logf(LevelTrace, "MN demod: protocol %s has no rfmode defined", pid)
			continue
		}
		if d.RFMode != "" && p.RFMode != d.RFMode {
			d.logf(LevelTrace, "MN demod: skipping protocol %s, receiver rfmode %s != %s", pid, d.RFMode, p.RFMode)
			continue
		}
		if ok, reason := p.LengthInRange(len(hexData)); !ok {
			d.logf(LevelTrace, "MN demod: protocol %s length check failed: %s", pid, reason)
			continue
		}
		if p.RegexMatch != nil && !p.RegexMatch.MatchString(hexData) {
			d.logf(LevelTrace, "MN demod: protocol %s payload does not match %s", pid, p.RegexMatch)
			continue
		}

		payload := hexData
		if p.Method != "" {
			converter, err := resolveMN(p.Method)
			if err != nil {
				d.logf(LevelError, "MN demod: protocol %s: %v", pid, err)
				continue
			}
			converted, ok := converter(d, pid, hexData)
			if !ok {
				continue
			}
			payload = converted
		}

		d.logf(LevelInfo, "MN demod: decoded protocol %s dmsg=%s%s", pid, p.Preamble, payload)
		out = append(out, frame.DecodedMessage{
			ProtocolID: pid,
			Payload:    p.Preamble + payload,
			Raw:        raw,
			Metadata: frame.Metadata{
				BitLength:  len(hexData) * 4,
				RSSI:       raw.RSSI,
				FreqAFC:    raw.FreqAFC,
				Modulation: p.Modulation,
				RFMode:     p.RFMode,
			},
		})
	}
	return out
}
