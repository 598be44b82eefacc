package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "strip LLC",
			input:    "Acme Industrial LLC",
			expected: "acme industrial",
		},
		{
			name:     "strip INC with period and comma",
			input:    "Smith & Sons, Inc.",
			expected: "smith and sons",
		},
		{
			name:     "strip dotted LLC",
			input:    "Bob's L.L.C.",
			expected: "bob s",
		},
		{
			name:     "stacked suffixes",
			input:    "Acme Holdings Corp Ltd",
			expected: "acme holdings",
		},
		{
			name:     "diacritics folded",
			input:    "Café Société GmbH",
			expected: "cafe societe",
		},
		{
			name:     "extra whitespace collapsed",
			input:    "  Extra   Spaces  Corp  ",
			expected: "extra spaces",
		},
		{
			name:     "quoted name",
			input:    `"Globex Corporation"`,
			expected: "globex",
		},
		{
			name:     "no suffix to strip",
			input:    "Simple Name",
			expected: "simple name",
		},
		{
			name:     "suffix-only name survives",
			input:    "LLC",
			expected: "llc",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanName(tt.input))
		})
	}
}

func TestDomain(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		ok       bool
	}{
		{"bare domain", "acme.com", "acme.com", true},
		{"uppercase", "ACME.COM", "acme.com", true},
		{"www stripped", "www.acme.com", "acme.com", true},
		{"full url", "https://www.acme.com/about?x=1", "acme.com", true},
		{"url with port", "http://acme.com:8080/jobs", "acme.com", true},
		{"email-ish input", "sales@acme.co.uk", "acme.co.uk", true},
		{"trailing dot", "acme.com.", "acme.com", true},
		{"subdomain kept", "app.acme.io", "app.acme.io", true},
		{"no tld", "localhost", "", false},
		{"garbage", "not a domain!!", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Domain(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestKeyPrefersDomain(t *testing.T) {
	assert.Equal(t, "acme.com", Key("Acme Industrial LLC", "https://www.acme.com"))
	assert.Equal(t, "acme industrial", Key("Acme Industrial LLC", "not valid"))
	assert.Equal(t, "acme industrial", Key("Acme Industrial LLC", ""))
}

func TestKeySameEmployerDifferentSpellings(t *testing.T) {
	a := Key("Acme Corp", "")
	b := Key("ACME Corporation", "")
	c := Key("Acme, Inc.", "")
	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
}

func TestKeyIdempotent(t *testing.T) {
	inputs := [][2]string{
		{"Acme Industrial LLC", "www.acme.com"},
		{"Café Société GmbH", ""},
		{"Smith & Sons, Inc.", "invalid domain"},
	}
	for _, in := range inputs {
		k := Key(in[0], in[1])
		assert.Equal(t, k, Key(k, ""), "key must be stable under re-normalization")
		assert.Equal(t, k, Key(k, k), "domain-shaped keys resolve through Domain")
	}
}
