package sdproto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bitsFromString(s string) []int {
	out := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = int(s[i] - '0')
	}
	return out
}

func TestPostDemoEM(t *testing.T) {
	d := testDecoder(t)

	good := bitsFromString("00000000000000000110000000110000000111011010100010001100010000111000000100000000111000001110100000101111010")
	rc, out := d.postDemoEM("test", good)
	require.Equal(t, 1, rc)
	want := bitsFromString("000000010000000101011011100010000000100000000011000000001000001100000101")
	assert.Equal(t, want, out)

	t.Run("crc error", func(t *testing.T) {
		bad := bitsFromString("00000000000000000110000000110000000111011010100010001100010000111000000100000000111000001110110001101111010")
		rc, _ := d.postDemoEM("test", bad)
		assert.Equal(t, 0, rc)
	})

	t.Run("wrong length", func(t *testing.T) {
		long := bitsFromString("0000000000000000011000000011000000011101101010001000110001000011100000010000000011100000111010000010111101010101")
		rc, _ := d.postDemoEM("test", long)
		assert.Equal(t, 0, rc)
	})

	t.Run("start not found", func(t *testing.T) {
		rc, _ := d.postDemoEM("test", bitsFromString("00000110000000111011010100010001100010000111000000100000000111000001110100000101111010"))
		assert.Equal(t, 0, rc)
	})
}

func TestPostDemoRevolt(t *testing.T) {
	d := testDecoder(t)

	good := bitsFromString("0111001101011010111001000000000000000000001100100000000000000000000000000101000100001101010000010101" + "1001")
	rc, out := d.postDemoRevolt("test", good)
	require.Equal(t, 1, rc)
	assert.Equal(t, good[:88], out)

	bad := append(append([]int{}, good...), 0)
	bad[0] = 1 // breaks the byte sum
	rc, _ = d.postDemoRevolt("test", bad)
	assert.Equal(t, 0, rc)

	rc, _ = d.postDemoRevolt("test", bitsFromString("0101"))
	assert.Equal(t, 0, rc)
}

func TestPostDemoFS20(t *testing.T) {
	d := testDecoder(t)

	good := bitsFromString("0000000000001000110000010010000000000000000100001011101101")
	rc, out := d.postDemoFS20("test", good)
	require.Equal(t, 1, rc)
	// 45 bit form: parity bits stripped, checksum byte removed, eight
	// zero bits widened in at position 24.
	want := bitsFromString("0001100001001000000000000000000000010000")
	assert.Equal(t, want, out)

	t.Run("all zeros", func(t *testing.T) {
		rc, _ := d.postDemoFS20("test", make([]int, 58))
		assert.Equal(t, 0, rc)
	})

	t.Run("wrong length", func(t *testing.T) {
		bits := bitsFromString("0000000000001001000001001011001000000000010100110000000000")
		rc, _ := d.postDemoFS20("test", bits)
		assert.Equal(t, 0, rc)
	})
}

func TestPostDemoFHT80(t *testing.T) {
	d := testDecoder(t)

	good := bitsFromString("000000000001000101101000101110011111100011101110000100100010000001")
	rc, out := d.postDemoFHT80("test", good)
	require.Equal(t, 1, rc)
	want := bitsFromString("000101100001011101111110011101110001001001000000")
	assert.Equal(t, want, out)

	t.Run("all zeros", func(t *testing.T) {
		rc, _ := d.postDemoFHT80("test", make([]int, 66))
		assert.Equal(t, 0, rc)
	})

	t.Run("wrong length", func(t *testing.T) {
		bits := bitsFromString("00000000000010001011010001011100000000000010101010000000001")
		rc, _ := d.postDemoFHT80("test", bits)
		assert.Equal(t, 0, rc)
	})
}

func TestPostDemoFHT80TF(t *testing.T) {
	d := testDecoder(t)

	// Preamble, start bit, then three parity-clean 9 bit groups
	// (0x11, 0x22, 0x33 with even parity).
	good := bitsFromString("000" + "1" + "000100010" + "001000100" + "001100110")
	rc, out := d.postDemoFHT80TF("test", good)
	require.Equal(t, 1, rc)
	assert.Equal(t, bitsFromString("000100010010001000110011"), out)

	t.Run("parity violation", func(t *testing.T) {
		bits := bitsFromString("000" + "1" + "000100011" + "001000100" + "001100110")
		rc, _ := d.postDemoFHT80TF("test", bits)
		assert.Equal(t, 0, rc)
	})

	t.Run("all zeros", func(t *testing.T) {
		rc, _ := d.postDemoFHT80TF("test", make([]int, 57))
		assert.Equal(t, 0, rc)
	})
}

func TestPostDemoWS2000(t *testing.T) {
	d := testDecoder(t)

	payload := strings.Repeat("01001000", 10) // 80 bits
	good := bitsFromString("10101100" + payload)
	rc, out := d.postDemoWS2000("test", good)
	require.Equal(t, 1, rc)
	assert.Equal(t, bitsFromString(payload), out)

	rc, _ = d.postDemoWS2000("test", bitsFromString(strings.Repeat("0", 90)))
	assert.Equal(t, 0, rc)

	rc, _ = d.postDemoWS2000("test", bitsFromString("10101100"+strings.Repeat("0", 40)))
	assert.Equal(t, 0, rc)
}

func TestPostDemoWS7035(t *testing.T) {
	d := testDecoder(t)

	payload := strings.Repeat("0110", 20) // 80 bits
	good := bitsFromString("00001111" + payload)
	rc, out := d.postDemoWS7035("test", good)
	require.Equal(t, 1, rc)
	assert.Equal(t, bitsFromString(payload), out)

	rc, _ = d.postDemoWS7035("test", bitsFromString(strings.Repeat("01", 20)))
	assert.Equal(t, 0, rc)
}

func TestPostDemoWS7053(t *testing.T) {
	d := testDecoder(t)

	bits := bitsFromString(strings.Repeat("0110", 24)) // 96 bits
	rc, out := d.postDemoWS7053("test", bits)
	require.Equal(t, 1, rc)
	assert.Equal(t, bits[:88], out)

	rc, _ = d.postDemoWS7053("test", bits[:40])
	assert.Equal(t, 0, rc)
}

func TestPostDemoLengthPrefix(t *testing.T) {
	d := testDecoder(t)

	bits := bitsFromString("00010000" + strings.Repeat("10", 8) + "0000")
	rc, out := d.postDemoLengthPrefix("test", bits)
	require.Equal(t, 1, rc)
	assert.Equal(t, bitsFromString(strings.Repeat("10", 8)), out)

	rc, _ = d.postDemoLengthPrefix("test", bitsFromString("11111111"))
	assert.Equal(t, 0, rc)
}
