package fallback

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/manifestd/internal/manifest"
	"github.com/danmuck/manifestd/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog/log"
)

func template() Document {
	return Document{
		Scope: "exemplo",
		Payload: manifest.Payload{
			Name:        "exemplo_readme",
			Version:     "0.1.0",
			Description: "static fallback manifest",
			Tags:        []string{"fallback"},
			MonetizationInfo: &manifest.MonetizationInfo{
				Model:    "FREE",
				Currency: "BRL",
			},
			LicensingInfo: &manifest.LicensingInfo{LicenseURL: "https://example.test/license"},
		},
	}
}

func writeFallback(t *testing.T, name string, format Format, doc Document) string {
	t.Helper()
	data, err := Encode(format, doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	return path
}

func TestStoreLoadsJSONAndYAML(t *testing.T) {
	testlog.Start(t)

	for _, tc := range []struct {
		name   string
		format Format
	}{
		{name: "fallback.json", format: FormatJSON},
		{name: "fallback.yaml", format: FormatYAML},
		{name: "fallback.yml", format: FormatYAML},
	} {
		path := writeFallback(t, tc.name, tc.format, template())
		store := NewDefaultStore(path)
		doc, ok := store.Load()
		if !ok {
			t.Fatalf("%s: expected fallback document", tc.name)
		}
		if doc.Provenance != manifest.ProvenanceFallback {
			t.Fatalf("%s: unexpected provenance %v", tc.name, doc.Provenance)
		}
		if doc.Scope != "exemplo" {
			t.Fatalf("%s: unexpected template scope %q", tc.name, doc.Scope)
		}
		if diff := cmp.Diff(template().Payload, doc.Payload); diff != "" {
			t.Fatalf("%s: payload mismatch (-want +got):\n%s", tc.name, diff)
		}
		log.Debug().Msgf("fallback/load: file=%s format=%s", tc.name, tc.format)
	}
}

func TestStoreMissingFileIsNotFound(t *testing.T) {
	testlog.Start(t)

	store := NewDefaultStore(filepath.Join(t.TempDir(), "absent.json"))
	if _, ok := store.Load(); ok {
		t.Fatalf("expected missing fallback to report false")
	}
	if _, ok, err := store.Read(); ok || err != nil {
		t.Fatalf("missing file is not an error: ok=%v err=%v", ok, err)
	}

	if _, ok := NewDefaultStore("").Load(); ok {
		t.Fatalf("unconfigured fallback must report false")
	}
}

func TestStoreUnparsableFileIsNotFound(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	cases := map[string]string{
		"truncated.json": `{"payload": {"name": "x"`,
		"empty.json":     `{"scope": "x", "payload": {}}`,
		"unknown.json":   `{"payload": {"name": "x"}, "cache_hit": true}`,
		"bad.yaml":       "payload: [unterminated",
		"protobuf.binpb": "\x0a\x04name",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		store := NewDefaultStore(path)
		if _, ok := store.Load(); ok {
			t.Fatalf("%s: expected unparsable fallback to report false", name)
		}
		if _, _, err := store.Read(); err == nil {
			t.Fatalf("%s: expected read error", name)
		}
	}
}

func TestFormatFor(t *testing.T) {
	if FormatFor("a/b.YAML") != FormatYAML || FormatFor("x.yml") != FormatYAML {
		t.Fatalf("expected yaml for yaml extensions")
	}
	if FormatFor("exemplo_readme.protobuf") != FormatJSON || FormatFor("x.json") != FormatJSON {
		t.Fatalf("expected json default")
	}
	if _, err := Encode(Format("xml"), Document{}); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
