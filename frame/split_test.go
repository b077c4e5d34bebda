package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMS(t *testing.T) {
	f, err := Split("MS;P0=-32001;P1=488;D=0101;CP=1;SP=0;R=48;O;m0;")
	require.NoError(t, err)

	assert.Equal(t, "MS", f.Type)
	assert.Equal(t, float64(-32001), f.Patterns[0])
	assert.Equal(t, float64(488), f.Patterns[1])
	assert.Equal(t, "0101", f.Data())
	cp, ok := f.UintField("CP")
	require.True(t, ok)
	assert.Equal(t, 1, cp)
	assert.True(t, f.Flags["O"])
	assert.True(t, f.Flags["m0"])
}

func TestSplitMOAlias(t *testing.T) {
	f, err := Split("MO;P0=-32001;P1=488;D=0101;CP=1;SP=0;")
	require.NoError(t, err)
	assert.Equal(t, "MS", f.Type)
}

func TestSplitMC(t *testing.T) {
	f, err := Split("MC;LL=-1024;LH=980;SL=-510;SH=489;D=AAB54A;C=500;L=24;R=242;")
	require.NoError(t, err)

	assert.Equal(t, "MC", f.Type)
	assert.Equal(t, "AAB54A", f.Data())
	l, ok := f.UintField("L")
	require.True(t, ok)
	assert.Equal(t, 24, l)
	assert.Equal(t, "-1024", f.KV["LL"])
}

func TestSplitRejects(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"unknown type", "MX;D=0101;"},
		{"duplicate key", "MC;D=AA;D=BB;C=500;L=8;"},
		{"duplicate pattern", "MS;P0=1;P0=2;D=00;CP=0;SP=0;"},
		{"lowercase key", "MC;d=AA;C=500;L=8;"},
		{"three letter key", "MC;ABC=1;D=AA;C=500;L=8;"},
		{"bad value", "MC;D=AA;C=50:0;L=8;"},
		{"stray token", "MC;D=AA;C=500;L=8;garbage;"},
		{"corrupt combined frame", "MU;P0=-2272;P1=228;D=0123;CP=5;R=4;P3=;L=L=-2864;"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Split(c.payload)
			require.Error(t, err)
			var pe *ParseError
			assert.ErrorAs(t, err, &pe)
		})
	}
}

func TestSplitMUStructure(t *testing.T) {
	good := []string{
		"MU;P0=-1508;P1=476;D=0121;CP=1;R=43;",
		"MU;P0=32001;P1=-1939;P2=1967;P3=3896;P4=-3895;D=01213424242124212121242121242121212124212424;CP=2;R=39;",
		"MU;P0=-370;P1=632;P2=112;D=01210121;CP=1;O;e;w=1;",
	}
	for _, payload := range good {
		_, err := Split(payload)
		assert.NoError(t, err, payload)
	}

	bad := []string{
		// Missing D=
		"MU;P0=-370;P1=632;P2=112;P3=-555;CP=4;R=77;",
		// Unknown specifier in the tail
		"MU;P0=-370;P1=632;D=0101;CP=1;V=9;",
		// Only one pattern definition
		"MU;P0=-370;D=0101;CP=0;",
	}
	for _, payload := range bad {
		_, err := Split(payload)
		assert.Error(t, err, payload)
	}
}

func TestUintField(t *testing.T) {
	f, err := Split("MC;D=AA;C=500;L=8;R=FF;")
	require.NoError(t, err)

	// R=FF is valid frame syntax (hex charset) but not a plain number.
	_, ok := f.UintField("R")
	assert.False(t, ok)
	_, ok = f.UintField("X")
	assert.False(t, ok)
	c, ok := f.UintField("C")
	require.True(t, ok)
	assert.Equal(t, 500, c)
}
