package ax25

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeDecodeUIFrame(t *testing.T) {
	f := &Frame{
		Dest:    Address{Call: "APRS"},
		Src:     Address{Call: "N0CALL", SSID: 7},
		Command: true,
		Type:    FrameUUI,
		PID:     0xf0,
		Info:    []byte("CQ CQ"),
	}

	raw, err := f.Encode()
	require.NoError(t, err)

	// Shifted-ASCII destination, C bit set, SSID in the seventh octet.
	assert.Equal(t, byte('A')<<1, raw[0])
	assert.Equal(t, byte(0x80|0x60|0x00|0x00), raw[6])
	assert.Equal(t, byte(0x60|(7<<1)|0x01), raw[13])
	assert.Equal(t, byte(0x03), raw[14])
	assert.Equal(t, byte(0xf0), raw[15])

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, f.Dest, got.Dest)
	assert.Equal(t, f.Src, got.Src)
	assert.True(t, got.Command)
	assert.Equal(t, FrameUUI, got.Type)
	assert.Equal(t, byte(0xf0), got.PID)
	assert.Equal(t, f.Info, got.Info)
}

func TestControlBytes(t *testing.T) {
	cases := []struct {
		frame Frame
		want  byte
	}{
		{Frame{Type: FrameUSABM, PF: true}, 0x3f},
		{Frame{Type: FrameUDISC, PF: true}, 0x53},
		{Frame{Type: FrameUDM}, 0x0f},
		{Frame{Type: FrameUUA, PF: true}, 0x73},
		{Frame{Type: FrameUUI}, 0x03},
		{Frame{Type: FrameI, NR: 3, NS: 5, PF: true}, 0x7a},
		{Frame{Type: FrameSRR, NR: 2}, 0x41},
		{Frame{Type: FrameSRNR, NR: 1, PF: true}, 0x35},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, c.frame.Control(), "type %v", c.frame.Type)
	}
}

func TestControlRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := Frame{
			Type: FrameType(rapid.IntRange(int(FrameI), int(FrameUTEST)).Draw(t, "type")),
			NR:   rapid.IntRange(0, 7).Draw(t, "nr"),
			NS:   rapid.IntRange(0, 7).Draw(t, "ns"),
			PF:   rapid.Bool().Draw(t, "pf"),
		}
		var got Frame
		DecodeControl(f.Control(), &got)

		assert.Equal(t, f.Type, got.Type)
		assert.Equal(t, f.PF, got.PF)
		if f.Type == FrameI {
			assert.Equal(t, f.NR, got.NR)
			assert.Equal(t, f.NS, got.NS)
		}
		if f.IsS() {
			assert.Equal(t, f.NR, got.NR)
		}
	})
}

func TestEncodeRejectsBadAddresses(t *testing.T) {
	f := &Frame{
		Dest: Address{Call: "TOOLONGCALL"},
		Src:  Address{Call: "N0CALL"},
		Type: FrameUUI,
		PID:  0xf0,
	}
	_, err := f.Encode()
	assert.Error(t, err)

	f = &Frame{
		Dest: Address{Call: "APRS"},
		Src:  Address{Call: "N0CALL", SSID: 16},
		Type: FrameUUI,
		PID:  0xf0,
	}
	_, err = f.Encode()
	assert.Error(t, err)
}

func TestDecodeRejectsShortFrames(t *testing.T) {
	_, err := Decode(make([]byte, 14))
	assert.Error(t, err)
}

func TestAddressString(t *testing.T) {
	assert.Equal(t, "N0CALL", Address{Call: "N0CALL"}.String())
	assert.Equal(t, "N0CALL-9", Address{Call: "N0CALL", SSID: 9}.String())
}
