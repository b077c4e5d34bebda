package sdproto

import (
	"strings"
)

// Post-demodulation validators for ASK/OOK protocols. Each takes the
// demodulated bit vector, validates the family's framing, parity and
// checksum rules, and returns the reformatted bits with status 1 — or
// status 0 to drop the candidate. All are pure; no state survives a
// call.

// postDemoEM validates an EM power meter message: a 0000000001
// preamble, 89 payload bits, an XOR checksum over the 9-bit groups, and
// per-byte bit reversal in the output.
func (d *Decoder) postDemoEM(name string, bits []int) (int, []int) {
	msg := bitsToString(bits)
	start := strings.Index(msg, "0000000001")
	if start <= 0 {
		d.logf(LevelInfo, "lib/postDemo_EM, protocol - start not found")
		return 0, nil
	}

	msg = msg[start+10:]
	if len(msg) != 89 {
		d.logf(LevelInfo, "lib/postDemo_EM, protocol - length %d not correct (expected 89)", len(msg))
		return 0, nil
	}

	var out []int
	crc := 0
	for count := 0; count+8 < len(msg); count += 9 {
		byteStr := msg[count : count+8]
		val := 0
		for i := 0; i < 8; i++ {
			val = val<<1 | int(byteStr[i]-'0')
		}
		if count < len(msg)-10 {
			for i := 7; i >= 0; i-- {
				out = append(out, int(byteStr[i]-'0'))
			}
			crc ^= val
		}
	}

	final := 0
	for i := len(msg) - 8; i < len(msg); i++ {
		final = final<<1 | int(msg[i]-'0')
	}
	if crc != final {
		d.logf(LevelInfo, "lib/postDemo_EM, protocol - CRC ERROR")
		return 0, nil
	}
	return 1, out
}

// postDemoRevolt validates a Revolt meter message: 96 bits where the
// last byte is the 8 bit sum of the first eleven.
func (d *Decoder) postDemoRevolt(name string, bits []int) (int, []int) {
	if len(bits) < 96 {
		return 0, nil
	}
	checksum := bitsToByte(bits[88:96])
	d.logf(LevelTrace, "lib/postDemo_Revolt, length=%d", len(bits))

	sum := 0
	for b := 0; b < 88; b += 8 {
		sum += bitsToByte(bits[b : b+8])
	}
	sum &= 0xFF
	if sum != checksum {
		d.logf(LevelInfo, "lib/postDemo_Revolt, ERROR checksum mismatch, %d != %d", sum, checksum)
		return 0, nil
	}
	return 1, bits[0:88]
}

// trimToFirstOne drops everything up to and including the first set
// bit. ok=false when the message is all zeros.
func trimToFirstOne(bits []int) ([]int, int, bool) {
	for i, b := range bits {
		if b == 1 {
			return bits[i+1:], i, true
		}
	}
	return nil, 0, false
}

// checkEvenParity9 verifies even parity over each 9 bit group.
func checkEvenParity9(bits []int) bool {
	for b := 0; b < len(bits); b += 9 {
		parity := 0
		end := b + 9
		if end > len(bits) {
			end = len(bits)
		}
		for i := b; i < end; i++ {
			parity += bits[i]
		}
		if parity%2 != 0 {
			return false
		}
	}
	return true
}

// stripParityBits removes every 9th bit, walking from the end so the
// indices stay valid.
func stripParityBits(bits []int, lastIdx int) []int {
	out := append([]int(nil), bits...)
	for b := lastIdx; b > 0; b -= 9 {
		out = append(out[:b], out[b+1:]...)
	}
	return out
}

// postDemoFS20 validates an FS20 remote message: 45 or 54 bits after
// the preamble, an 8 bit sum with initial constant 6, even parity per
// 9 bit group, parity bits stripped, and the 45 bit form widened with
// eight zero bits at position 24.
func (d *Decoder) postDemoFS20(name string, bits []int) (int, []int) {
	msg, pos, ok := trimToFirstOne(bits)
	if !ok {
		d.logf(LevelInfo, "lib/postDemo_FS20, ERROR message all bits are zeros")
		return 0, nil
	}
	d.logf(LevelTrace, "lib/postDemo_FS20, pos=%d length=%d", pos, len(msg))

	if len(msg) == 46 || len(msg) == 55 {
		msg = msg[:len(msg)-1]
	}
	length := len(msg)
	if length != 45 && length != 54 {
		d.logf(LevelTrace, "lib/postDemo_FS20, ERROR - wrong length=%d (must be 45 or 54)", length)
		return 0, nil
	}

	sum := 6
	for b := 0; b < length-9; b += 9 {
		sum += bitsToByte(msg[b : b+8])
	}
	checksum := bitsToByte(msg[length-9 : length-1])

	// A match against the FHT80 constant means this is an FHT80 frame
	// leaking into the FS20 decoder.
	if (sum+6)&0xFF == checksum {
		d.logf(LevelTrace, "lib/postDemo_FS20, detection aborted, checksum matches FHT code")
		return 0, nil
	}
	if sum&0xFF != checksum {
		d.logf(LevelVerbose, "lib/postDemo_FS20, ERROR - wrong checksum")
		return 0, nil
	}
	if !checkEvenParity9(msg) {
		d.logf(LevelInfo, "lib/postDemo_FS20, ERROR - parity not even")
		return 0, nil
	}

	out := stripParityBits(msg, length-1)
	if length == 45 {
		out = append(out[:32], out[40:]...)
		widened := make([]int, 0, len(out)+8)
		widened = append(widened, out[:24]...)
		widened = append(widened, 0, 0, 0, 0, 0, 0, 0, 0)
		widened = append(widened, out[24:]...)
		out = widened
	} else {
		out = append(out[:40], out[48:]...)
	}
	return 1, out
}

// postDemoFHT80 validates an FHT80 thermostat message: 54 bits after
// the preamble, sum with initial constant 12, even parity, parity bits
// stripped.
func (d *Decoder) postDemoFHT80(name string, bits []int) (int, []int) {
	msg, pos, ok := trimToFirstOne(bits)
	if !ok {
		d.logf(LevelInfo, "lib/postDemo_FHT80, ERROR message all bits are zeros")
		return 0, nil
	}
	d.logf(LevelTrace, "lib/postDemo_FHT80, pos=%d length=%d", pos, len(msg))

	if len(msg) == 55 {
		msg = msg[:54]
	}
	if len(msg) != 54 {
		d.logf(LevelTrace, "lib/postDemo_FHT80, ERROR - wrong length=%d (expected 54)", len(msg))
		return 0, nil
	}

	sum := 12
	for b := 0; b < 45; b += 9 {
		sum += bitsToByte(msg[b : b+8])
	}
	checksum := bitsToByte(msg[45:53])

	if (sum-6)&0xFF == checksum {
		d.logf(LevelTrace, "lib/postDemo_FHT80, detection aborted, checksum matches FS20 code")
		return 0, nil
	}
	if sum&0xFF != checksum {
		d.logf(LevelVerbose, "lib/postDemo_FHT80, ERROR - wrong checksum %d != %d", sum&0xFF, checksum)
		return 0, nil
	}
	if !checkEvenParity9(msg) {
		d.logf(LevelInfo, "lib/postDemo_FHT80, ERROR - parity not even")
		return 0, nil
	}
	return 1, stripParityBits(msg, 53)
}

// postDemoFHT80TF validates an FHT80TF window contact message: 27 bits
// after the preamble with even parity per 9 bit group.
func (d *Decoder) postDemoFHT80TF(name string, bits []int) (int, []int) {
	msg, pos, ok := trimToFirstOne(bits)
	if !ok {
		d.logf(LevelInfo, "lib/postDemo_FHT80TF, ERROR all bits are zeros")
		return 0, nil
	}
	d.logf(LevelTrace, "lib/postDemo_FHT80TF, pos=%d length=%d", pos, len(msg))

	if len(msg) == 28 {
		msg = msg[:27]
	}
	if len(msg) != 27 {
		return 0, nil
	}
	if !checkEvenParity9(msg) {
		return 0, nil
	}
	return 1, stripParityBits(msg, 26)
}

// postDemoWS2000 aligns a WS2000 weather station message on its
// 10101100 preamble.
func (d *Decoder) postDemoWS2000(name string, bits []int) (int, []int) {
	msg := bitsToString(bits)
	start := strings.Index(msg, "10101100")
	if start < 0 {
		d.logf(LevelInfo, "lib/postDemo_WS2000, ERROR - preamble not found")
		return 0, nil
	}
	out := bits[start+8:]
	if len(out) < 80 {
		d.logf(LevelInfo, "lib/postDemo_WS2000, ERROR - message too short")
		return 0, nil
	}
	d.logf(LevelTrace, "lib/postDemo_WS2000, OK - length=%d", len(out))
	return 1, out
}

// postDemoWS7035 aligns a WS7035 message on its 00001111 sync.
func (d *Decoder) postDemoWS7035(name string, bits []int) (int, []int) {
	if len(bits) < 80 {
		d.logf(LevelInfo, "lib/postDemo_WS7035, ERROR - message too short")
		return 0, nil
	}
	msg := bitsToString(bits)
	start := strings.Index(msg, "00001111")
	if start < 0 {
		d.logf(LevelInfo, "lib/postDemo_WS7035, ERROR - sync pattern not found")
		return 0, nil
	}
	out := bits[start+8:]
	d.logf(LevelTrace, "lib/postDemo_WS7035, OK - length=%d", len(out))
	return 1, out
}

// postDemoWS7053 truncates a WS7053 message to its 88 bit payload.
func (d *Decoder) postDemoWS7053(name string, bits []int) (int, []int) {
	if len(bits) < 88 {
		d.logf(LevelInfo, "lib/postDemo_WS7053, ERROR - message too short")
		return 0, nil
	}
	d.logf(LevelTrace, "lib/postDemo_WS7053, OK - length=%d", len(bits))
	return 1, bits[:88]
}

// postDemoLengthPrefix extracts a payload whose bit count is carried in
// the first byte.
func (d *Decoder) postDemoLengthPrefix(name string, bits []int) (int, []int) {
	if len(bits) < 8 {
		d.logf(LevelInfo, "lib/postDemo_lengtnPrefix, ERROR - message too short for length field")
		return 0, nil
	}
	length := bitsToByte(bits[0:8])
	if len(bits) < 8+length {
		d.logf(LevelInfo, "lib/postDemo_lengtnPrefix, ERROR - message too short, need %d bits, got %d", 8+length, len(bits))
		return 0, nil
	}
	d.logf(LevelTrace, "lib/postDemo_lengtnPrefix, OK - length=%d, total_bits=%d", length, len(bits))
	return 1, bits[8 : 8+length]
}
