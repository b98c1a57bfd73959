package websocket

import "testing"

func TestMatchesNoProxy(t *testing.T) {
	for _, test := range []struct {
		host, noProxy string
		want          bool
	}{
		{"example.com", "example.com", true},
		{"example.com", "other.com,example.com", true},
		{"echo.websocket.org", ".websocket.org", true},
		{"websocket.org", ".websocket.org", true},
		{"notwebsocket.org", ".websocket.org", false},
		{"any.host", "*", true},
		{"example.com", "", false},
		{"", "example.com", false},
		{"example.com", " example.com ", true},
		{"example.com", "foo.com\texample.com", true},
		{"sub.example.com", "example.com", true},
		{"example.com", "sub.example.com", false},
	} {
		if got := matchesNoProxy(test.host, test.noProxy); got != test.want {
			t.Errorf("matchesNoProxy(%q, %q) = %v, want %v", test.host, test.noProxy, got, test.want)
		}
	}
}

func TestSplitNoProxyEntries(t *testing.T) {
	got := splitNoProxyEntries("a.com, b.com\tc.com")
	want := []string{"a.com", "b.com", "c.com"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
