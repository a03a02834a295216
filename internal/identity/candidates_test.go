package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func values(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Value
	}
	return out
}

func TestClean(t *testing.T) {
	assert.Equal(t, "R-0042", Clean("  r-0042\t"))
	assert.Equal(t, "TK001", Clean("tk 001"))
	assert.Equal(t, "", Clean(" #! "))
}

func TestCandidates(t *testing.T) {
	t.Run("bare digits get the prefix", func(t *testing.T) {
		assert.Equal(t, []string{"0042", "R-0042"}, values(Candidates("0042", DefaultPrefixes)))
	})

	t.Run("prefix letters without dash", func(t *testing.T) {
		assert.Equal(t, []string{"R0042", "R-0042", "0042"}, values(Candidates("r0042", DefaultPrefixes)))
	})

	t.Run("full prefix is also tried stripped", func(t *testing.T) {
		got := Candidates(" R-0042 ", DefaultPrefixes)
		assert.Equal(t, []string{"R-0042", "0042"}, values(got))
		assert.Equal(t, VariantExact, got[0].Variant)
		assert.Equal(t, VariantPrefix, got[1].Variant)
	})

	t.Run("longest digit run", func(t *testing.T) {
		got := Candidates("card 7/0042", DefaultPrefixes)
		assert.Equal(t, []string{"CARD70042", "R-CARD70042", "70042", "R-70042"}, values(got))
		assert.Equal(t, VariantNumeric, got[2].Variant)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, Candidates("   ", DefaultPrefixes))
	})

	t.Run("no prefixes configured", func(t *testing.T) {
		assert.Equal(t, []string{"TK001", "001"}, values(Candidates("tk001", nil)))
	})
}

func TestParseQRPayload(t *testing.T) {
	cases := []struct{ in, want string }{
		{"TK001", "TK001"},
		{"  TK001 \n", "TK001"},
		{`{"token_number":"TK001"}`, "TK001"},
		{`{"tokenNumber":" TK002 "}`, "TK002"},
		{`{"household_id":"HH-9"}`, "HH-9"},
		{`{"cardNumber":42}`, "42"},
		{`{"qrCode":"R-0001","x":1}`, "R-0001"},
		{`{"token":"","card_number":"R-0007"}`, "R-0007"},
		{`{"unrelated":"value"}`, `{"unrelated":"value"}`},
		{`{not json`, `{not json`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseQRPayload(tc.in), "input %q", tc.in)
	}
}
