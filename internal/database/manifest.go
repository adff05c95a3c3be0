package database

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hadir-dev/hadir/internal/facematch"
)

// ManifestEntry is one line of an enrollment manifest, the JSONL format the
// external training step exports (one embedding per reference photo).
type ManifestEntry struct {
	NIM       string    `json:"nim"`
	Name      string    `json:"name"`
	Embedding []float32 `json:"embedding"`
}

// ReadManifest parses a JSONL enrollment manifest and groups the entries
// into identities. Lines for the same NIM accumulate embeddings; names are
// normalized the same way the enrollment store normalizes them.
func ReadManifest(r io.Reader) ([]Identity, error) {
	scanner := bufio.NewScanner(r)
	// Embedding lines run a few KB each; allow generous headroom.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		order []string
		byNIM = make(map[string]*Identity)
		line  int
	)

	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var entry ManifestEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", line, err)
		}
		if !ValidNIM(entry.NIM) {
			return nil, fmt.Errorf("manifest line %d: invalid nim %q", line, entry.NIM)
		}
		if len(entry.Embedding) == 0 {
			return nil, fmt.Errorf("manifest line %d: empty embedding", line)
		}

		id, ok := byNIM[entry.NIM]
		if !ok {
			id = &Identity{NIM: entry.NIM, Name: facematch.NormalizeStudentName(entry.Name)}
			byNIM[entry.NIM] = id
			order = append(order, entry.NIM)
		}
		id.Embeddings = append(id.Embeddings, entry.Embedding)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	identities := make([]Identity, 0, len(order))
	for _, nim := range order {
		identities = append(identities, *byNIM[nim])
	}
	return identities, nil
}

// WriteManifest writes identities as a JSONL manifest, one line per
// embedding. The inverse of ReadManifest, used for kiosk snapshots.
func WriteManifest(w io.Writer, identities []Identity) error {
	enc := json.NewEncoder(w)
	for _, id := range identities {
		for _, emb := range id.Embeddings {
			if err := enc.Encode(ManifestEntry{NIM: id.NIM, Name: id.Name, Embedding: emb}); err != nil {
				return fmt.Errorf("write manifest entry for %s: %w", id.NIM, err)
			}
		}
	}
	return nil
}

// ManifestSource loads identities from a manifest file on disk. It lets
// offline kiosks run without a database connection.
type ManifestSource struct {
	Path string
}

// Identities implements IdentitySource.
func (s ManifestSource) Identities(ctx context.Context) ([]Identity, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	return ReadManifest(f)
}
