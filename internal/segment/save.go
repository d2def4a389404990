package segment

import (
	"fmt"
	"os"
	"path/filepath"
)

// SaveChunks writes each chunk to dir/chunk_<i>.txt, prefixed with its label.
func SaveChunks(dir string, chunks []Chunk) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create chunk dir: %w", err)
	}
	for i, c := range chunks {
		name := filepath.Join(dir, fmt.Sprintf("chunk_%d.txt", i))
		body := fmt.Sprintf("[index: %s]\n%s", c.Index, c.Content)
		if err := os.WriteFile(name, []byte(body), 0o644); err != nil {
			return fmt.Errorf("write chunk %d: %w", i, err)
		}
	}
	return nil
}
