package sdproto

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cwsl/sdgateway/frame"
)

// decode runs a canonical payload through splitter and decoder.
func decode(t *testing.T, d *Decoder, payload string) []frame.DecodedMessage {
	t.Helper()
	f, err := frame.Split(payload)
	require.NoError(t, err)
	raw := frame.RawFrame{Line: payload, MessageType: f.Type}
	return d.Decode(f, raw)
}

// runDecodeFixtures pushes one frame of every type through the decoder.
func runDecodeFixtures(t *testing.T, d *Decoder) {
	t.Helper()
	fixtures := []string{
		"MS;P0=330;P1=-14520;P2=-1254;P3=1155;P4=-330;D=01" + strings.Repeat("02", 23) + "34;CP=0;SP=0;R=10;",
		"MU;P0=-1508;P1=476;D=010101010101;CP=1;R=43;",
		"MC;LL=-1399;LH=1304;SL=-720;SH=644;D=CC6DE8A9EB18DD8;C=676;L=57;",
		"MN;D=9AA6362CC8AAAA000012F8F4;R=242;",
	}
	for _, payload := range fixtures {
		f, err := frame.Split(payload)
		require.NoError(t, err)
		d.Decode(f, frame.RawFrame{Line: payload, MessageType: f.Type})
	}
}

func TestDemodulateMSProtocol31(t *testing.T) {
	d := testDecoder(t)

	payload := "MS;P0=330;P1=-14520;P2=-1254;P3=1155;P4=-330;D=01" + strings.Repeat("02", 23) + "34;CP=0;SP=0;R=10;"
	msgs := decode(t, d, payload)
	require.NotEmpty(t, msgs)

	var found *frame.DecodedMessage
	for i := range msgs {
		if msgs[i].ProtocolID == "3.1" {
			found = &msgs[i]
		}
	}
	require.NotNil(t, found, "protocol 3.1 not decoded: %v", msgs)
	assert.Equal(t, "i000001", found.Payload)
	assert.Equal(t, 24, found.Metadata.BitLength)
	assert.Equal(t, 330.0, found.Metadata.Clock)
	require.NotNil(t, found.Metadata.RSSI)
	assert.InDelta(t, -69.0, *found.Metadata.RSSI, 0.001)
}

func TestDemodulateMSRejectsBadFields(t *testing.T) {
	d := testDecoder(t)

	// CP names a pattern the frame does not carry.
	msgs := decode(t, d, "MS;P0=330;P1=-14520;D=0101;CP=5;SP=0;")
	assert.Empty(t, msgs)

	// Non-numeric data is refused by the splitter already.
	_, err := frame.Split("MS;P0=330;P1=-14520;D=01x1;CP=0;SP=0;")
	assert.Error(t, err)

	// Missing SP.
	msgs = decode(t, d, "MS;P0=330;P1=-14520;D=0101;CP=0;")
	assert.Empty(t, msgs)
}

func TestDemodulateMSClockTolerance(t *testing.T) {
	// Protocol 3.1 expects clockabs 330 within ±30%; a 500 µs clock
	// must not bind.
	d := testDecoder(t)
	payload := "MS;P0=500;P1=-22000;P2=-1900;P3=1750;P4=-500;D=01" + strings.Repeat("02", 23) + "34;CP=0;SP=0;"
	for _, m := range decode(t, d, payload) {
		assert.NotEqual(t, "3.1", m.ProtocolID)
	}
}

func muTestCatalog(t *testing.T, extra string) *Decoder {
	t.Helper()
	data := []byte(`{"protocols": {"t1": {
		"name": "unit MU",
		"clockabs": 500,
		"one": [1, -2],
		"zero": [1, -1],
		"length_min": 8,
		"length_max": 40,
		"preamble": "u"` + extra + `}}}`)
	c, err := Load(data)
	require.NoError(t, err)
	return NewDecoder(c)
}

func TestDemodulateMU(t *testing.T) {
	d := muTestCatalog(t, "")

	// one = "01" (1, -2), zero = "02" (1, -1) under a 500 µs clock.
	payload := "MU;P0=500;P1=-1000;P2=-500;D=0101020102010201020102;CP=0;R=43;"
	msgs := decode(t, d, payload)
	require.Len(t, msgs, 1)

	m := msgs[0]
	assert.Equal(t, "t1", m.ProtocolID)
	// 11010101010 bits -> padded to 12.
	assert.Equal(t, 12, m.Metadata.BitLength)
	assert.True(t, strings.HasPrefix(m.Payload, "u"))
}

func TestDemodulateMUStartAndReconstruct(t *testing.T) {
	data := []byte(`{"protocols": {"t2": {
		"name": "unit MU start",
		"clockabs": 500,
		"start": [3, -3],
		"one": [1, -2],
		"zero": [1, -1],
		"length_min": 4,
		"length_max": 16,
		"reconstructBit": true,
		"dispatchBin": true,
		"paddingbits": 1
	}}}`)
	c, err := Load(data)
	require.NoError(t, err)
	d := NewDecoder(c)

	// start = "34", one = "10", zero = "12", trailing half chunk "1"
	// reconstructs a final one bit.
	payload := "MU;P0=-1000;P1=500;P2=-500;P3=1500;P4=-1500;D=34101210121;CP=1;"
	msgs := decode(t, d, payload)
	require.Len(t, msgs, 1)
	assert.Equal(t, "10101", msgs[0].Payload)
}

func TestDemodulateMULengthBounds(t *testing.T) {
	d := muTestCatalog(t, "")

	// Only 6 bits; length_min is 8, so the repetition regex cannot
	// match and nothing is emitted.
	msgs := decode(t, d, "MU;P0=500;P1=-1000;P2=-500;D=010102010201;CP=0;")
	assert.Empty(t, msgs)
}

func TestDemodulateMUDispatchCap(t *testing.T) {
	d := muTestCatalog(t, "")

	// Six separated repeats of the same signal; the per-line cap
	// keeps at most four dispatches.
	block := "0101020102010201020102"
	payload := "MU;P0=500;P1=-1000;P2=-500;D=" + strings.Repeat(block+"33", 5) + block + ";CP=0;"
	msgs := decode(t, d, payload)
	assert.LessOrEqual(t, len(msgs), 4)
	assert.NotEmpty(t, msgs)
}

func TestDemodulateMUFloatBits(t *testing.T) {
	// A float sequence maps to 'F' bits. With dispatchBin they surface
	// in the payload; with a post-demodulation function that does not
	// accept non-binary bits the candidate is dropped.
	base := `{"protocols": {"t3": {
		"name": "unit MU float",
		"clockabs": 500,
		"one": [1, -2],
		"zero": [1, -1],
		"float": [1, -3],
		"length_min": 4,
		"length_max": 16,
		"paddingbits": 1,
		"dispatchBin": true%s
	}}}`

	c, err := Load([]byte(fmt.Sprintf(base, "")))
	require.NoError(t, err)
	d := NewDecoder(c)
	payload := "MU;P0=500;P1=-1000;P2=-500;P3=-1500;D=01010201020301;CP=0;"
	msgs := decode(t, d, payload)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Payload, "F")

	c, err = Load([]byte(fmt.Sprintf(base, `, "postDemodulation": "postdemodulation.postDemo_Revolt"`)))
	require.NoError(t, err)
	d = NewDecoder(c)
	msgs = decode(t, d, payload)
	assert.Empty(t, msgs)
}

func TestDemodulateMCSomfy(t *testing.T) {
	d := testDecoder(t)

	payload := "MC;LL=-1399;LH=1304;SL=-720;SH=644;D=CC6DE8A9EB18DD8;C=676;L=57;R=30;"
	msgs := decode(t, d, payload)
	require.Len(t, msgs, 1)

	m := msgs[0]
	assert.Equal(t, "43", m.ProtocolID)
	assert.Equal(t, "Ys98DBD153D631BB", m.Payload)
	assert.Equal(t, 57, m.Metadata.BitLength)
	assert.Equal(t, 676.0, m.Metadata.Clock)
}

func TestDemodulateMCFunkbus(t *testing.T) {
	d := testDecoder(t)

	payload := "MC;LL=-1020;LH=980;SL=-515;SH=490;D=9D4F3F7555A00;C=500;L=52;"
	msgs := decode(t, d, payload)
	require.NotEmpty(t, msgs)

	var payloads []string
	for _, m := range msgs {
		payloads = append(payloads, m.Payload)
	}
	assert.Contains(t, payloads, "J2C175F30008F")
}

func TestDemodulateMCLengthBoundsProperty(t *testing.T) {
	data := []byte(`{"protocols": {"t4": {
		"name": "unit MC",
		"method": "manchester.mcRaw",
		"length_min": 16,
		"length_max": 32
	}}}`)
	c, err := Load(data)
	require.NoError(t, err)
	d := NewDecoder(c)

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 60).Draw(t, "bits")
		hexLen := (n + 3) / 4
		payload := fmt.Sprintf("MC;LL=-1020;LH=980;SL=-515;SH=490;D=%s;C=500;L=%d;",
			strings.Repeat("A", hexLen), n)
		f, err := frame.Split(payload)
		if err != nil {
			t.Fatalf("split: %v", err)
		}
		msgs := d.Decode(f, frame.RawFrame{Line: payload, MessageType: f.Type})

		inRange := n >= 16 && n <= 32
		if inRange && len(msgs) == 0 {
			t.Fatalf("no message for %d bits", n)
		}
		if !inRange && len(msgs) != 0 {
			t.Fatalf("message emitted for out-of-range %d bits", n)
		}
	})
}

func TestDemodulateMNLaCrosse(t *testing.T) {
	c, err := LoadDefault()
	require.NoError(t, err)
	d := NewDecoder(c)
	d.RFMode = "LaCrosse_mode1"

	msgs := decode(t, d, "MN;D=9AA6362CC8AAAA000012F8F4;R=242;")
	require.Len(t, msgs, 1)

	m := msgs[0]
	assert.Equal(t, "100", m.ProtocolID)
	assert.Equal(t, "OK 9 42 129 4 212 44", m.Payload)
	require.NotNil(t, m.Metadata.RSSI)
	assert.InDelta(t, -81.0, *m.Metadata.RSSI, 0.001)
	assert.Equal(t, "2-FSK", m.Metadata.Modulation)

	// One damaged nibble fails the CRC and drops the frame.
	msgs = decode(t, d, "MN;D=9BA6362CC8AAAA000012F8F4;R=242;")
	assert.Empty(t, msgs)
}

func TestDemodulateMNBresser6in1(t *testing.T) {
	c, err := LoadDefault()
	require.NoError(t, err)
	d := NewDecoder(c)
	d.RFMode = "Bresser_6in1"

	msgs := decode(t, d, "MN;D=3BF120B00C1618FF77FF0458152293FFF06B0000;")
	require.Len(t, msgs, 1)
	assert.Equal(t, "115", msgs[0].ProtocolID)
	assert.Equal(t, "3BF120B00C1618FF77FF0458152293FFF06B0000", msgs[0].Payload)

	msgs = decode(t, d, "MN;D=000020B00C1618FF77FF0458152293FFF06B0000;")
	assert.Empty(t, msgs)
}

func TestDemodulateMNPassthroughRegex(t *testing.T) {
	c, err := LoadDefault()
	require.NoError(t, err)
	d := NewDecoder(c)
	d.RFMode = "Fine_Offset_WH51_434"

	data := "51006BC6AC9B99F8FF00FF00FF07" // 28 hex chars, starts with 51
	msgs := decode(t, d, "MN;D="+data+";")
	require.Len(t, msgs, 1)
	assert.Equal(t, "107", msgs[0].ProtocolID)
	assert.Equal(t, "W107#"+data, msgs[0].Payload)

	// Same length, wrong prefix: the payload regex gate drops it.
	msgs = decode(t, d, "MN;D=52006BC6AC9B99F8FF00FF00FF07;")
	assert.Empty(t, msgs)
}

func TestDemodulateMNWithoutRFModeRunsAll(t *testing.T) {
	c, err := LoadDefault()
	require.NoError(t, err)
	d := NewDecoder(c)

	// With no receiver rfmode both LaCrosse descriptors validate the
	// same CRC and emit.
	msgs := decode(t, d, "MN;D=9AA6362CC8AAAA000012F8F4;")
	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.ProtocolID)
	}
	assert.Contains(t, ids, "100")
	assert.Contains(t, ids, "103")
}

func TestInactiveProtocolSkipped(t *testing.T) {
	data := []byte(`{"protocols": {"t5": {
		"name": "unit inactive",
		"active": false,
		"method": "manchester.mcRaw",
		"length_min": 4,
		"length_max": 64
	}}}`)
	c, err := Load(data)
	require.NoError(t, err)
	d := NewDecoder(c)

	msgs := decode(t, d, "MC;LL=-1020;LH=980;SL=-515;SH=490;D=AAAA;C=500;L=16;")
	assert.Empty(t, msgs)
}

func TestDecodeSkipsUnresolvableMethod(t *testing.T) {
	// A catalog entry whose method name resolves to nothing is skipped
	// as a catalog inconsistency, not a crash.
	data := []byte(`{"protocols": {"t6": {
		"name": "unit bad method",
		"method": "manchester.mcBit2Nonexistent",
		"length_min": 4,
		"length_max": 64
	}}}`)
	c, err := Load(data)
	require.NoError(t, err)
	d := NewDecoder(c)

	msgs := decode(t, d, "MC;LL=-1020;LH=980;SL=-515;SH=490;D=AAAA;C=500;L=16;")
	assert.Empty(t, msgs)
}
