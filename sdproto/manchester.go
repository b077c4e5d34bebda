package sdproto

import (
	"fmt"
	"strconv"
	"strings"
)

// Manchester output handlers (mcBit2*). Each takes the device-decoded
// bit string plus the protocol ID and renders the dispatched payload,
// returning status 1 on success or -1 with an error text.

// boundsFor returns the configured length bounds for a protocol,
// -1 when unbounded or unknown.
func (d *Decoder) boundsFor(protocolID string) (min, max int) {
	p := d.protocols.Get(protocolID)
	if p == nil {
		return -1, -1
	}
	return p.LengthMin, p.LengthMax
}

// mcRaw length-checks the bit string against length_max and renders it
// as hex. The default output handler for Manchester protocols without a
// specialized decoder.
func (d *Decoder) mcRaw(name, bitData, protocolID string, mcBitNum int) (int, string) {
	if bitData == "" {
		return -1, "no bitData provided"
	}
	if mcBitNum <= 0 {
		mcBitNum = len(bitData)
	}
	if _, max := d.boundsFor(protocolID); max >= 0 && mcBitNum > max {
		return -1, "message is too long"
	}
	hex, err := BinStr2HexStr(bitData)
	if err != nil {
		return -1, "invalid bit data"
	}
	return 1, hex
}

// mcHexWithBounds is the shared body of the plain hex handlers: enforce
// both length bounds, convert, log under the family label.
func (d *Decoder) mcHexWithBounds(family, name, bitData, protocolID string, mcBitNum int) (int, string) {
	if mcBitNum <= 0 {
		mcBitNum = len(bitData)
	}
	d.logf(LevelTrace, "%s: lib/mcBit2%s, protocol %s, length %d", name, family, protocolID, mcBitNum)

	min, max := d.boundsFor(protocolID)
	if min >= 0 && mcBitNum < min {
		return -1, "message is too short"
	}
	if max >= 0 && mcBitNum > max {
		return -1, "message is too long"
	}
	hex, err := BinStr2HexStr(bitData)
	if err != nil {
		return -1, "invalid bit data"
	}
	d.logf(LevelTrace, "%s: %s converted to hex: %s", name, family, hex)
	return 1, hex
}

func (d *Decoder) mcBit2Hideki(name, bitData, protocolID string, mcBitNum int) (int, string) {
	return d.mcHexWithBounds("Hideki", name, bitData, protocolID, mcBitNum)
}

func (d *Decoder) mcBit2Maverick(name, bitData, protocolID string, mcBitNum int) (int, string) {
	return d.mcHexWithBounds("Maverick", name, bitData, protocolID, mcBitNum)
}

func (d *Decoder) mcBit2OSV1(name, bitData, protocolID string, mcBitNum int) (int, string) {
	return d.mcHexWithBounds("OSV1", name, bitData, protocolID, mcBitNum)
}

func (d *Decoder) mcBit2OSV2o3(name, bitData, protocolID string, mcBitNum int) (int, string) {
	return d.mcHexWithBounds("OSV2o3", name, bitData, protocolID, mcBitNum)
}

func (d *Decoder) mcBit2OSPIR(name, bitData, protocolID string, mcBitNum int) (int, string) {
	return d.mcHexWithBounds("OSPIR", name, bitData, protocolID, mcBitNum)
}

func (d *Decoder) mcBit2TFA(name, bitData, protocolID string, mcBitNum int) (int, string) {
	return d.mcHexWithBounds("TFA", name, bitData, protocolID, mcBitNum)
}

// mcBit2Grothe handles the Grothe gong: the message is exactly 32 bits.
func (d *Decoder) mcBit2Grothe(name, bitData, protocolID string, mcBitNum int) (int, string) {
	if mcBitNum <= 0 {
		mcBitNum = len(bitData)
	}
	d.logf(LevelTrace, "%s: lib/mcBit2Grothe, bitdata: %s (%d)", name, bitData, mcBitNum)

	if mcBitNum != 32 {
		d.logf(LevelInfo, "%s: lib/mcBit2Grothe, expected 32 bits, got %d", name, mcBitNum)
		return -1, fmt.Sprintf("message must be 32 bits, got %d", mcBitNum)
	}
	hex, err := BinStr2HexStr(bitData)
	if err != nil {
		return -1, "invalid bit data"
	}
	return 1, hex
}

// mcBit2SomfyRTS handles Somfy RTS shutters: 56 bit frames, with a
// spurious leading bit tolerated on 57 bit captures.
func (d *Decoder) mcBit2SomfyRTS(name, bitData, protocolID string, mcBitNum int) (int, string) {
	if mcBitNum <= 0 {
		mcBitNum = len(bitData)
	}
	d.logf(LevelTrace, "%s: lib/mcBit2SomfyRTS, bitdata: %s (%d)", name, bitData, mcBitNum)

	if mcBitNum == 57 && len(bitData) >= 57 {
		bitData = bitData[1:57]
	}
	if len(bitData) != 56 {
		return -1, fmt.Sprintf("message must be 56 bits, got %d", len(bitData))
	}
	hex, err := BinStr2HexStr(bitData)
	if err != nil {
		return -1, "invalid bit data"
	}
	return 1, hex
}

// mcBit2AS extracts an AS sensor message between two "1100" sync marks,
// the first of which must appear past bit 16.
func (d *Decoder) mcBit2AS(name, bitData, protocolID string, mcBitNum int) (int, string) {
	if mcBitNum <= 0 {
		mcBitNum = len(bitData)
	}
	if len(bitData) < 16 {
		return -1, ""
	}
	start := strings.Index(bitData[16:], "1100")
	if start < 0 {
		return -1, ""
	}
	start += 16
	d.logf(LevelTrace, "lib/mcBit2AS, AS protocol detected")

	end := len(bitData)
	if start+16 < len(bitData) {
		if i := strings.Index(bitData[start+16:], "1100"); i >= 0 {
			end = start + 16 + i
		}
	}
	msgLen := end - start

	min, max := d.boundsFor(protocolID)
	if min >= 0 && msgLen < min {
		return -1, "message is too short"
	}
	if max >= 0 && msgLen > max {
		return -1, "message is too long"
	}

	hex, err := BinStr2HexStr(bitData[start:])
	if err != nil {
		return -1, "invalid bit data"
	}
	d.logf(LevelTrace, "%s: AS, protocol converted to hex: (%s) with length (%d) bits", name, hex, msgLen)
	return 1, hex
}

// mcBit2Sainlogic aligns a Sainlogic weather frame on its 010100 sync
// word, left-padding with '1' until ten bits precede it, and truncates
// to the fixed 128 bit message.
func (d *Decoder) mcBit2Sainlogic(name, bitData, protocolID string, mcBitNum int) (int, string) {
	if mcBitNum <= 0 {
		mcBitNum = len(bitData)
	}
	d.logf(LevelTrace, "%s: lib/mcBit2Sainlogic, protocol %s, length %d", name, protocolID, mcBitNum)

	min, max := d.boundsFor(protocolID)
	if max >= 0 && mcBitNum > max {
		return -1, "message is too long"
	}

	if mcBitNum < 128 {
		start := strings.Index(bitData, "010100")
		d.logf(LevelTrace, "%s: lib/mcBit2Sainlogic, start found at pos %d", name, start)
		if start < 0 || start > 10 {
			d.logf(LevelVerbose, "%s: lib/mcBit2Sainlogic, start 010100 not found", name)
			return -1, "start 010100 not found"
		}
		for start < 10 {
			bitData = "1" + bitData
			start++
		}
		if len(bitData) > 128 {
			bitData = bitData[:128]
		}
		mcBitNum = len(bitData)
	}

	if min >= 0 && mcBitNum < min {
		return -1, "message is too short"
	}
	hex, err := BinStr2HexStr(bitData)
	if err != nil {
		return -1, "invalid bit data"
	}
	return 1, hex
}

// mcBit2Funkbus decodes the Insta Funkbus remote: Manchester to
// differential Manchester, alignment on the 01100 sync, even parity per
// byte and a folded-nibble checksum over the first five bytes.
func (d *Decoder) mcBit2Funkbus(name, bitData, protocolID string, mcBitNum int) (int, string) {
	if mcBitNum <= 0 {
		mcBitNum = len(bitData)
	}
	min, max := d.boundsFor(protocolID)
	if min >= 0 && mcBitNum < min {
		return -1, "message is too short"
	}
	if max >= 0 && mcBitNum > max {
		return -1, "message is too long"
	}

	d.logf(LevelTrace, "lib/mcBitFunkbus, %s Funkbus: raw=%s", name, bitData)

	bitMsg := MC2DMC(bitData)

	pidNum, _ := strconv.Atoi(protocolID)
	if pidNum == 119 {
		pos := strings.Index(bitMsg, "01100")
		if pos < 0 || pos >= 5 {
			return -1, "wrong bits at begin"
		}
		bitMsg = "001" + bitMsg[pos:]
		if len(bitMsg) < 48 {
			return -1, "wrong bits at begin"
		}
	} else {
		bitMsg = "0" + bitMsg
		if len(bitMsg) < 48 {
			return -1, "wrong bits at begin"
		}
	}

	var hexData strings.Builder
	xorVal, chk, parity := 0, 0, 0
	for i := 0; i < 6; i++ {
		data64, err := strconv.ParseUint(bitMsg[i*8:(i+1)*8], 2, 16)
		if err != nil {
			return -1, "invalid bit data"
		}
		data := int(data64)
		fmt.Fprintf(&hexData, "%02X", data)

		if i < 5 {
			xorVal ^= data
		} else {
			chk = data & 0x0F
			xorVal ^= data & 0xE0
			data &= 0xF0
		}
		for t := data; t != 0; t >>= 1 {
			parity ^= t & 1
		}
	}

	if parity == 1 {
		return -1, "parity error"
	}

	// The 4 bit checksum folds the accumulated XOR's nibbles and remaps
	// them through the device's fixed permutation.
	xorNibble := (xorVal&0xF0)>>4 ^ xorVal&0x0F
	result := 0
	if xorNibble&0x8 != 0 {
		result ^= 0xC
	}
	if xorNibble&0x4 != 0 {
		result ^= 0x2
	}
	if xorNibble&0x2 != 0 {
		result ^= 0x8
	}
	if xorNibble&0x1 != 0 {
		result ^= 0x3
	}
	if result != chk {
		return -1, "checksum error"
	}

	d.logf(LevelVerbose, "lib/mcBitFunkbus, %s Funkbus: len=%d parity=%d result=%d chk=%d hex=%s",
		name, len(bitMsg), parity, result, chk, hexData.String())
	return 1, hexData.String()
}
