package search

import "testing"

func TestParseURL(t *testing.T) {
	cases := []struct {
		raw    string
		host   string
		port   int
		useTLS bool
		fail   bool
	}{
		{raw: "http://localhost:6333", host: "localhost", port: 6334},
		{raw: "https://qdrant.internal:6333", host: "qdrant.internal", port: 6334, useTLS: true},
		{raw: "http://qdrant:6334", host: "qdrant", port: 6334},
		{raw: "http://qdrant:7000", host: "qdrant", port: 7000},
		{raw: "http://qdrant", host: "qdrant", port: 6334},
		{raw: "", fail: true},
		{raw: "::broken::", fail: true},
	}

	for _, tc := range cases {
		host, port, useTLS, err := parseURL(tc.raw)
		if tc.fail {
			if err == nil {
				t.Fatalf("parseURL(%q): expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseURL(%q): %v", tc.raw, err)
		}
		if host != tc.host || port != tc.port || useTLS != tc.useTLS {
			t.Fatalf("parseURL(%q) = %s %d %v", tc.raw, host, port, useTLS)
		}
	}
}
