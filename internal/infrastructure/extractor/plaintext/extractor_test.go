package plaintext

import "testing"

func TestDecode(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
		want string
	}{
		{"plain", []byte("  Lease agreement\n"), "Lease agreement"},
		{"crlf", []byte("line one\r\nline two"), "line one\n\nline two"},
		{"invalid utf8", []byte("rent \xff\xfe due"), "rent  due"},
		{"control bytes", []byte("a\x00b\x07c\td"), "abc\td"},
		{"binary only", []byte{0x00, 0x01, 0x02}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decode(tc.raw); got != tc.want {
				t.Fatalf("Decode() = %q, want %q", got, tc.want)
			}
		})
	}
}
