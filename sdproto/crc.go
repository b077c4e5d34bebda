package sdproto

import (
	"encoding/hex"
	"fmt"
	"math/bits"
)

// crc16Params describes one member of the parameterized CRC-16 family.
type crc16Params struct {
	poly   uint16
	init   uint16
	refIn  bool
	refOut bool
	xorOut uint16
}

// CRC-16/CCITT-FALSE, used by the Bresser 6in1 family.
var crc16CCITTFalse = crc16Params{poly: 0x1021}

// CRC-16/BUYPASS-style non-reflected 0x8005, used by PCA301.
var crc16PCA301 = crc16Params{poly: 0x8005}

// calcCRC16 computes the CRC over a hex string and renders it as four
// uppercase hex digits. Invalid hex yields "0000"; the callers parse the
// same bytes again afterwards and drop the frame when that fails.
func calcCRC16(hexData string, p crc16Params) string {
	data, err := hex.DecodeString(hexData)
	if err != nil {
		return "0000"
	}
	crc := p.init
	for _, b := range data {
		if p.refIn {
			b = bits.Reverse8(b)
		}
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ p.poly
			} else {
				crc <<= 1
			}
		}
	}
	if p.refOut {
		crc = bits.Reverse16(crc)
	}
	crc ^= p.xorOut
	return fmt.Sprintf("%04X", crc)
}

// calcCRC8LaCrosse computes the LaCrosse sensor CRC-8: poly 0x31, MSB
// first, init 0x00, no reflection. This is the variant the known-good
// captures validate.
func calcCRC8LaCrosse(data []byte) uint8 {
	var crc uint8
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
