package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestNormalizeScope(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "repositories", want: "repositories"},
		{raw: "  users\t", want: "users"},
		{raw: "a/b c", want: "a/b c"},
		{raw: "", wantErr: true},
		{raw: " \n\t ", wantErr: true},
	}
	for _, tc := range tests {
		got, err := NormalizeScope(tc.raw)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidScope) {
				t.Fatalf("NormalizeScope(%q): expected ErrInvalidScope, got %v", tc.raw, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("NormalizeScope(%q) = (%q, %v), want %q", tc.raw, got, err, tc.want)
		}
	}
}

func TestProvenanceTextRoundTrip(t *testing.T) {
	doc := Document{
		Scope:      "repositories",
		Payload:    Payload{Name: "indexer"},
		Provenance: ProvenanceFallback,
		FetchedAt:  time.Unix(1700000000, 0).UTC(),
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"provenance":"fallback"`) {
		t.Fatalf("expected lowercase provenance in %s", raw)
	}

	var back Document
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Provenance != ProvenanceFallback {
		t.Fatalf("unexpected provenance: %v", back.Provenance)
	}

	var p Provenance
	if err := p.UnmarshalText([]byte("satellite")); err == nil {
		t.Fatalf("expected unknown provenance to fail")
	}
}

func TestStampedDoesNotMutateReceiver(t *testing.T) {
	doc := Document{Scope: "users"}
	stamped := doc.Stamped(ProvenanceCache)
	if doc.Provenance != ProvenanceUnknown {
		t.Fatalf("receiver mutated: %v", doc.Provenance)
	}
	if stamped.Provenance != ProvenanceCache {
		t.Fatalf("unexpected stamp: %v", stamped.Provenance)
	}
}

func TestScopeErrorMatchesKindAndCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: %w", errors.New("connection refused"))
	err := fmt.Errorf("resolve: %w", NewScopeError(ErrManifestUnavailable, "repositories", cause))

	if !errors.Is(err, ErrManifestUnavailable) {
		t.Fatalf("expected kind match")
	}
	if errors.Is(err, ErrCancelled) {
		t.Fatalf("unexpected kind match")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain")
	}
	scope, ok := ScopeOf(err)
	if !ok || scope != "repositories" {
		t.Fatalf("unexpected scope: %q ok=%v", scope, ok)
	}
	if !strings.Contains(err.Error(), `scope="repositories"`) {
		t.Fatalf("message does not name scope: %q", err.Error())
	}
}

func TestPayloadIsZero(t *testing.T) {
	if !(Payload{}).IsZero() {
		t.Fatalf("empty payload should be zero")
	}
	if (Payload{SecurityInfo: &SecurityInfo{}}).IsZero() {
		t.Fatalf("payload with sub-record should not be zero")
	}
}
