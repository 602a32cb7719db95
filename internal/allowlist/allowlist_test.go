package allowlist

import (
	"reflect"
	"testing"
)

func TestParse_TrimsAndDeduplicates(t *testing.T) {
	l := Parse(" 0xAAA ,0xbbb,,0xaaa , ")
	got := l.Addresses()
	want := []string{"0xAAA", "0xbbb"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Addresses() = %v, want %v", got, want)
	}
	if l.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l.Len())
	}
}

func TestIsPublicMode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"empty", "", true},
		{"only separators", " , ,", true},
		{"one address", "addrA", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Parse(tt.raw).IsPublicMode(); got != tt.want {
				t.Errorf("IsPublicMode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsAllowed_PublicModeAllowsAnyAddress(t *testing.T) {
	l := Parse("")
	for _, addr := range []string{"addrA", "0x0000000000000000000000000000000000000001", "anything"} {
		if !l.IsAllowed(addr) {
			t.Errorf("IsAllowed(%q) = false in public mode", addr)
		}
	}
}

func TestIsAllowed_SingleEntry(t *testing.T) {
	l := Parse("addrA")
	if !l.IsAllowed("addrA") {
		t.Error("IsAllowed(addrA) = false, want true")
	}
	if l.IsAllowed("addrB") {
		t.Error("IsAllowed(addrB) = true, want false")
	}
	if l.IsPublicMode() {
		t.Error("IsPublicMode() = true, want false")
	}
}

func TestIsAllowed_EmptyAddress(t *testing.T) {
	for _, l := range []*List{Parse(""), Parse("addrA")} {
		if l.IsAllowed("") {
			t.Error("IsAllowed(\"\") = true, want false")
		}
		if l.IsAllowed("   ") {
			t.Error("IsAllowed(whitespace) = true, want false")
		}
	}
}

func TestIsAllowed_IgnoresCase(t *testing.T) {
	l := Parse("0xAbCdEf0000000000000000000000000000000001")
	if !l.IsAllowed("0xabcdef0000000000000000000000000000000001") {
		t.Error("lowercase form should match checksummed entry")
	}
}

func TestNilList(t *testing.T) {
	var l *List
	if !l.IsPublicMode() {
		t.Error("nil list should be public mode")
	}
	if l.Addresses() != nil {
		t.Error("nil list Addresses() should be nil")
	}
}
