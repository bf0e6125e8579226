package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var artifactMagic = map[string][]byte{
	".png": {0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'},
	".glb": []byte("glTF"),
	".obj": []byte("# mesh\n"),
}

// WriteArtifact writes a placeholder pipeline artifact of roughly size bytes.
// Known extensions start with their format signature so the file looks like
// the real thing to anything sniffing the header.
func WriteArtifact(t testing.TB, path string, size int) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data := append([]byte(nil), artifactMagic[strings.ToLower(filepath.Ext(path))]...)
	if pad := size - len(data); pad > 0 {
		data = append(data, bytes.Repeat([]byte{0}, pad)...)
	}
	if len(data) == 0 {
		data = []byte{0}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
