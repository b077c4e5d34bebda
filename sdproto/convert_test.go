package sdproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvLaCrosse(t *testing.T) {
	d := testDecoder(t)

	cases := []struct {
		hexData string
		pid     string
		want    string
	}{
		{"9AA6362CC8AAAA000012F8F4", "100", "OK 9 42 129 4 212 44"},
		{"9A05922F8180046818480800", "103", "OK 9 40 1 4 168 47"},
	}
	for _, c := range cases {
		got, ok := d.convLaCrosse(c.pid, c.hexData)
		require.True(t, ok, c.hexData)
		assert.Equal(t, c.want, got)
	}

	t.Run("crc failure", func(t *testing.T) {
		for _, h := range []string{"9BA6362CC8AAAA000012F8F4", "9B05922F8180046818480800"} {
			_, ok := d.convLaCrosse("100", h)
			assert.False(t, ok, h)
		}
	})

	t.Run("too short", func(t *testing.T) {
		_, ok := d.convLaCrosse("100", "0105A")
		assert.False(t, ok)
	})

	t.Run("not hexadecimal", func(t *testing.T) {
		_, ok := d.convLaCrosse("100", "010503B7PA1041AAAAAAAAPF")
		assert.False(t, ok)
	})
}

func TestConvPCA301(t *testing.T) {
	d := testDecoder(t)

	cases := []struct {
		hexData string
		want    string
	}{
		{
			"010503B7A101AAAAAAAA7492AA9885E53246E91113F897A4F80D30C8DE602BDF",
			"OK 24 1 5 3 183 161 1 170 170 170 170 7492",
		},
		{
			"0405019E8700AAAAAAAA0F13AA16ACC0540AAA49C814473A2774D208AC0B0167",
			"OK 24 4 5 1 158 135 0 170 170 170 170 0F13",
		},
	}
	for _, c := range cases {
		got, ok := d.convPCA301("101", c.hexData)
		require.True(t, ok, c.hexData)
		assert.Equal(t, c.want, got)
	}

	t.Run("crc failure", func(t *testing.T) {
		_, ok := d.convPCA301("101", "010503B7A101AAAAAAAA74000A9885E53246E91113F897A4F80D30C8DE602BDF")
		assert.False(t, ok)
	})

	t.Run("too short", func(t *testing.T) {
		_, ok := d.convPCA301("101", "010503B7A101AAAAAAAA")
		assert.False(t, ok)
	})

	t.Run("not hexadecimal", func(t *testing.T) {
		_, ok := d.convPCA301("101", "010503B7PA1041AAAAAAAAPF")
		assert.False(t, ok)
	})
}

func TestConvKoppFreeControl(t *testing.T) {
	d := testDecoder(t)

	got, ok := d.convKoppFreeControl("102", "07C2AD1A30CC0F0328")
	require.True(t, ok)
	assert.Equal(t, "kr07C2AD1A30CC0F03", got)

	_, ok = d.convKoppFreeControl("102", "07C2AD1A30CC0F0300")
	assert.False(t, ok)

	_, ok = d.convKoppFreeControl("102", "07")
	assert.False(t, ok)
}

func TestConvBresser5in1(t *testing.T) {
	d := testDecoder(t)

	const valid = "E7527FF78FF7EFF8FDD7BBCAFF18AD80087008100702284435000002"

	got, ok := d.convBresser5in1("108", valid)
	require.True(t, ok)
	assert.Equal(t, "AD8008700810070228443500", got)

	t.Run("checksum failure", func(t *testing.T) {
		data := valid[:26] + "E9" + valid[28:]
		_, ok := d.convBresser5in1("108", data)
		assert.False(t, ok)
	})

	t.Run("inversion failure", func(t *testing.T) {
		data := valid[:28] + "FFFF" + valid[32:]
		_, ok := d.convBresser5in1("108", data)
		assert.False(t, ok)
	})
}

func TestConvBresser6in1(t *testing.T) {
	d := testDecoder(t)

	const valid = "3BF120B00C1618FF77FF0458152293FFF06B0000"

	got, ok := d.convBresser6in1("115", valid)
	require.True(t, ok)
	assert.Equal(t, valid, got)

	t.Run("crc failure", func(t *testing.T) {
		_, ok := d.convBresser6in1("115", "0000"+valid[4:])
		assert.False(t, ok)
	})

	t.Run("sum failure", func(t *testing.T) {
		_, ok := d.convBresser6in1("115", valid[:4]+"00"+valid[6:])
		assert.False(t, ok)
	})
}

func TestConvBresser7in1(t *testing.T) {
	d := testDecoder(t)

	const valid = "FC28A6F58DCA18AAAAAAAAAA2EAAB8DA2DAACCDCAAAAAAAAAA000000"
	const validXorA = "56820C5F2760B2000000000084001270870066760000000000AAAAAA"

	got, ok := d.convBresser7in1("117", valid)
	require.True(t, ok)
	assert.Equal(t, validXorA, got)

	t.Run("lfsr failure", func(t *testing.T) {
		_, ok := d.convBresser7in1("117", "00"+valid[2:])
		assert.False(t, ok)
	})

	t.Run("byte 21 zero", func(t *testing.T) {
		data := valid[:42] + "00" + valid[44:]
		_, ok := d.convBresser7in1("117", data)
		assert.False(t, ok)
	})
}

func TestConvBresserLightning(t *testing.T) {
	d := testDecoder(t)

	// Construct a frame whose whitened form passes the LFSR gate: take
	// a known payload tail, compute the matching first two bytes from
	// the digest, then un-whiten.
	tail := "0C5F2760B2000000"
	digest := lfsrDigest16(8, 0x8810, 0xABF9, tail)
	first := digest ^ 0x899E
	xored := hexByte(first>>8) + hexByte(first&0xFF) + tail
	plain, ok := hexNibbleXorA(xored)
	require.True(t, ok)

	got, ok := d.convBresserLightning("118", plain)
	require.True(t, ok)
	assert.Equal(t, xored[:20], got)

	t.Run("checksum failure", func(t *testing.T) {
		_, ok := d.convBresserLightning("118", "00"+plain[2:])
		assert.False(t, ok)
	})

	t.Run("too short", func(t *testing.T) {
		_, ok := d.convBresserLightning("118", "0102")
		assert.False(t, ok)
	})
}

func hexByte(v uint16) string {
	const digits = "0123456789ABCDEF"
	return string(digits[(v>>4)&0xF]) + string(digits[v&0xF])
}
