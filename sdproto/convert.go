package sdproto

import (
	"encoding/hex"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// MN converter library. Each converter validates the device-captured
// hex payload for one protocol family and returns the dispatched form;
// ok=false drops the candidate.

// hexNibbleXorA XORs every nibble of a hex string with 0xA, the
// whitening Bresser applies before its checksums.
func hexNibbleXorA(hexData string) (string, bool) {
	var b strings.Builder
	b.Grow(len(hexData))
	for i := 0; i < len(hexData); i++ {
		v, err := strconv.ParseUint(hexData[i:i+1], 16, 8)
		if err != nil {
			return "", false
		}
		b.WriteByte("0123456789ABCDEF"[v^0xA])
	}
	return b.String(), true
}

func hexByteAt(hexData string, idx int) (int, bool) {
	if idx*2+2 > len(hexData) {
		return 0, false
	}
	v, err := strconv.ParseUint(hexData[idx*2:idx*2+2], 16, 16)
	if err != nil {
		return 0, false
	}
	return int(v), true
}

// convBresserLightning checks the lightning sensor's keyed LFSR digest
// (gen 0x8810, key 0xABF9, final XOR 0x899E) over the whitened payload.
func (d *Decoder) convBresserLightning(protocolID, hexData string) (string, bool) {
	if len(hexData) < 20 {
		d.logf(LevelInfo, "ConvBresser_lightning, hexData is too short")
		return "", false
	}
	xored, ok := hexNibbleXorA(hexData)
	if !ok {
		return "", false
	}
	d.logf(LevelTrace, "ConvBresser_lightning, msg=%s", hexData)
	d.logf(LevelTrace, "ConvBresser_lightning, xor=%s", xored)

	digest := lfsrDigest16(8, 0x8810, 0xABF9, xored[4:20])
	first, err := strconv.ParseUint(xored[0:4], 16, 16)
	if err != nil {
		return "", false
	}
	calc := digest ^ uint16(first)
	d.logf(LevelTrace, "ConvBresser_lightning, checksumCalc:0x%04X, must be 0x899E", calc)
	if calc != 0x899E {
		d.logf(LevelInfo, "ConvBresser_lightning, checksumCalc:0x%04X != checksum:0x899E", calc)
		return "", false
	}
	return xored[:20], true
}

// convBresser5in1 checks the 5in1 station's redundancy block: bytes
// 13..25 are the bitwise inverse of bytes 0..12, and the inverse of
// byte 0 carries the population count of inverted bytes 1..12.
func (d *Decoder) convBresser5in1(protocolID, hexData string) (string, bool) {
	if len(hexData) < 52 {
		return "", false
	}
	bitAdd, bitsumRef := 0, 0
	for i := 0; i < 13; i++ {
		b, ok1 := hexByteAt(hexData, i)
		inv, ok2 := hexByteAt(hexData, i+13)
		if !ok1 || !ok2 {
			return "", false
		}
		if b^inv != 0xFF {
			d.logf(LevelInfo, "ConvBresser_5in1, inverted data check failed at byte %d", i)
			return "", false
		}
		if i == 0 {
			bitsumRef = inv
		} else {
			bitAdd += bits.OnesCount(uint(inv))
		}
	}
	if bitAdd != bitsumRef {
		d.logf(LevelInfo, "ConvBresser_5in1, checksumCalc:%d != checksum:%d", bitAdd, bitsumRef)
		return "", false
	}
	return hexData[28:52], true
}

// convBresser6in1 checks CRC-16/CCITT-FALSE over bytes 2..16 against
// bytes 0..1 and requires the byte sum over bytes 2..17 to be 0xFF.
func (d *Decoder) convBresser6in1(protocolID, hexData string) (string, bool) {
	if len(hexData) < 36 {
		return "", false
	}
	calc := calcCRC16(hexData[4:34], crc16CCITTFalse)
	checksum := strings.ToUpper(hexData[0:4])
	d.logf(LevelTrace, "ConvBresser_6in1, calcCRC16 = 0x%s, CRC16 = 0x%s", calc, checksum)
	if calc != checksum {
		d.logf(LevelInfo, "ConvBresser_6in1, checksumCalc:0x%s != checksum:0x%s", calc, checksum)
		return "", false
	}

	sum := 0
	for i := 2; i < 18; i++ {
		b, ok := hexByteAt(hexData, i)
		if !ok {
			return "", false
		}
		sum += b
	}
	if sum&0xFF != 0xFF {
		d.logf(LevelInfo, "ConvBresser_6in1, sum %d != 255", sum&0xFF)
		return "", false
	}
	return hexData, true
}

// convBresser7in1 checks the 7in1 station's keyed LFSR digest
// (gen 0x8810, key 0xBA95, final XOR 0x6DF1) over the whitened payload.
func (d *Decoder) convBresser7in1(protocolID, hexData string) (string, bool) {
	if len(hexData) < 46 {
		return "", false
	}
	if hexData[42:44] == "00" {
		d.logf(LevelInfo, "ConvBresser_7in1, byte 21 is 0x00")
		return "", false
	}
	xored, ok := hexNibbleXorA(hexData)
	if !ok {
		return "", false
	}
	d.logf(LevelTrace, "ConvBresser_7in1, msg=%s", hexData)
	d.logf(LevelTrace, "ConvBresser_7in1, xor=%s", xored)

	digest := lfsrDigest16(21, 0x8810, 0xBA95, xored[4:46])
	first, err := strconv.ParseUint(xored[0:4], 16, 16)
	if err != nil {
		return "", false
	}
	calc := digest ^ uint16(first)
	d.logf(LevelTrace, "ConvBresser_7in1, checksumCalc:0x%04X, must be 0x6DF1", calc)
	if calc != 0x6DF1 {
		d.logf(LevelInfo, "ConvBresser_7in1, checksumCalc:0x%04X != checksum:0x6DF1", calc)
		return "", false
	}
	return xored, true
}

// convPCA301 checks the PCA301 socket's CRC-16 (poly 0x8005) over the
// first ten bytes and reformats the frame for the downstream module.
func (d *Decoder) convPCA301(protocolID, hexData string) (string, bool) {
	if len(hexData) < 24 {
		return "", false
	}
	checksum := strings.ToUpper(hexData[20:24])
	calc := calcCRC16(hexData[0:20], crc16PCA301)
	if calc != checksum {
		d.logf(LevelInfo, "ConvPCA301, checksumCalc:0x%s != checksum:0x%s", calc, checksum)
		return "", false
	}

	var v [10]int
	for i := range v {
		b, ok := hexByteAt(hexData, i)
		if !ok {
			return "", false
		}
		v[i] = b
	}
	channel, command := v[0], v[1]
	addr1, addr2, addr3 := v[2], v[3], v[4]
	plugstate := v[5] & 0x0F
	power1, power2 := v[6], v[7]
	consumption1, consumption2 := v[8], v[9]

	return fmt.Sprintf("OK 24 %d %d %d %d %d %d %d %d %d %d %s",
		channel, command, addr1, addr2, addr3, plugstate,
		power1, power2, consumption1, consumption2, checksum), true
}

// convKoppFreeControl checks the Kopp FreeControl XOR block check
// (seed 0xAA) and prefixes the payload with "kr".
func (d *Decoder) convKoppFreeControl(protocolID, hexData string) (string, bool) {
	if len(hexData) < 4 {
		return "", false
	}
	n, ok := hexByteAt(hexData, 0)
	if !ok {
		return "", false
	}
	anz := n + 1
	if len(hexData) < anz*2+2 {
		return "", false
	}

	blkck := 0xAA
	for i := 0; i < anz; i++ {
		b, ok := hexByteAt(hexData, i)
		if !ok {
			return "", false
		}
		blkck ^= b
	}
	checksum, ok := hexByteAt(hexData, anz)
	if !ok {
		return "", false
	}
	if blkck != checksum {
		d.logf(LevelInfo, "ConvKoppFreeControl, checksumCalc:%d != checksum:%d", blkck, checksum)
		return "", false
	}
	return "kr" + hexData[0:anz*2], true
}

// convLaCrosse checks the LaCrosse sensor CRC-8 over the first four
// bytes and reformats temperature/humidity for the downstream module.
func (d *Decoder) convLaCrosse(protocolID, hexData string) (string, bool) {
	if len(hexData) < 10 {
		return "", false
	}
	data, err := hex.DecodeString(hexData[0:8])
	if err != nil {
		return "", false
	}
	calc := calcCRC8LaCrosse(data)
	checksum, ok := hexByteAt(hexData, 4)
	if !ok {
		return "", false
	}
	if int(calc) != checksum {
		d.logf(LevelInfo, "ConvLaCrosse, checksumCalc:%d != checksum:%d", calc, checksum)
		return "", false
	}

	byte0, byte1, byte2, byte3 := int(data[0]), int(data[1]), int(data[2]), int(data[3])
	addr := (byte0&0x0F)<<2 | (byte1&0xC0)>>6

	tempRaw := (byte1&0x0F)*100 + ((byte2&0xF0)>>4)*10 + byte2&0x0F
	temperature := float64(tempRaw)/10 - 40
	if temperature >= 60 || temperature <= -40 {
		d.logf(LevelInfo, "ConvLaCrosse, temp:%v (out of range)", temperature)
		return "", false
	}

	humidity := byte3
	batInserted := (byte1 & 0x20) << 2
	sensorType := 1
	if humidity&0x7F == 125 {
		sensorType = 2
	}

	// temperature*10+1000 in tenths, kept in integer math.
	tempScaled := (tempRaw + 600) & 0xFFFF
	t1 := tempScaled >> 8 & 0xFF
	t2 := tempScaled & 0xFF

	return fmt.Sprintf("OK 9 %d %d %d %d %d", addr, sensorType|batInserted, t1, t2, humidity), true
}
