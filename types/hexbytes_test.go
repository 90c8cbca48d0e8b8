package types

import (
	"encoding/json"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestHexBytes(t *testing.T) {
	c := qt.New(t)

	c.Run("String", func(c *qt.C) {
		c.Assert(HexBytes(nil).String(), qt.Equals, "0x")
		c.Assert(HexBytes{0x00, 0xab, 0xcd}.String(), qt.Equals, "0x00abcd")
	})

	c.Run("LeftPad", func(c *qt.C) {
		in := HexBytes{0x01, 0x02}
		out := in.LeftPad(4)
		c.Assert(out, qt.DeepEquals, HexBytes{0x00, 0x00, 0x01, 0x02})
		same := in.LeftPad(1)
		same[0] = 0xff
		c.Assert(in[0], qt.Equals, byte(0x01))
	})

	c.Run("JSON", func(c *qt.C) {
		data, err := json.Marshal(HexBytes{0xde, 0xad})
		c.Assert(err, qt.IsNil)
		c.Assert(string(data), qt.Equals, `"0xdead"`)

		var out HexBytes
		c.Assert(json.Unmarshal([]byte(`"beef"`), &out), qt.IsNil)
		c.Assert(out, qt.DeepEquals, HexBytes{0xbe, 0xef})
		c.Assert(json.Unmarshal([]byte(`"0xzz"`), &out), qt.ErrorMatches, `invalid hex string .*`)
	})
}
