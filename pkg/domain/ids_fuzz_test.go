//go:build go1.18

package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseCaseID checks that parsing never panics and that accepted input
// round-trips.
func FuzzParseCaseID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE cases;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseCaseID(input)
		if err == nil {
			roundTrip, err2 := ParseCaseID(id.String())
			if err2 != nil {
				t.Errorf("valid ID failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("round-trip changed ID value")
			}
			if id.IsNil() {
				t.Error("nil UUID accepted")
			}
		}
		if !utf8.ValidString(input) && err == nil {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

func FuzzParseCustomerID(f *testing.F) {
	f.Add("CUST-1A2B3C4D")
	f.Add("")
	f.Add("cust id")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseCustomerID(input)
		if err != nil {
			return
		}
		if _, err := ParseCustomerID(id.String()); err != nil {
			t.Errorf("accepted customer id failed to re-parse: %v", err)
		}
	})
}
