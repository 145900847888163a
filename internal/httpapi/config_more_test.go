package httpapi

import "testing"

func TestSetMaxBodyBytes(t *testing.T) {
	defer SetMaxBodyBytes(0)

	SetMaxBodyBytes(1234)
	if maxBodyBytes != 1234 {
		t.Fatalf("expected 1234, got %d", maxBodyBytes)
	}
	for _, n := range []int64{0, -1} {
		SetMaxBodyBytes(n)
		if maxBodyBytes != defaultMaxBodyBytes {
			t.Fatalf("SetMaxBodyBytes(%d): expected default, got %d", n, maxBodyBytes)
		}
	}
}

func TestSetCORSOptions_CopiesSlices(t *testing.T) {
	defer SetCORSOptions(false, nil, nil, nil)
	origins := []string{"http://a"}
	SetCORSOptions(true, origins, nil, nil)
	origins[0] = "http://mutated"
	if corsAllowedOrigins[0] != "http://a" {
		t.Fatalf("expected defensive copy, got %q", corsAllowedOrigins[0])
	}
}
