package schema

import (
	"encoding/json"
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedSchemas(t *testing.T) {
	t.Parallel()

	entries, err := fs.ReadDir(FS, ".")
	if err != nil {
		t.Fatalf("failed to read embedded FS: %v", err)
	}

	found := map[string]bool{}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".schema.json") {
			continue
		}
		found[entry.Name()] = true

		t.Run(entry.Name(), func(t *testing.T) {
			t.Parallel()

			data, err := FS.ReadFile(entry.Name())
			if err != nil {
				t.Fatalf("failed to read %s: %v", entry.Name(), err)
			}

			var doc map[string]any
			if err := json.Unmarshal(data, &doc); err != nil {
				t.Fatalf("%s is not a JSON object: %v", entry.Name(), err)
			}
			for _, key := range []string{"$schema", "$id", "type"} {
				if _, ok := doc[key]; !ok {
					t.Errorf("%s missing %s field", entry.Name(), key)
				}
			}
			if doc["$id"] != entry.Name() {
				t.Errorf("%s has $id %v, want file name", entry.Name(), doc["$id"])
			}
		})
	}

	for _, name := range []string{"group.schema.json", "target.schema.json"} {
		if !found[name] {
			t.Errorf("expected schema %s not embedded", name)
		}
	}
}
