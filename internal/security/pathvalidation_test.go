package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	tests := []struct {
		name string
		path string
		ok   bool
	}{
		{"file in dir", filepath.Join(dir, "left_matrix.txt"), true},
		{"nested missing file", filepath.Join(dir, "sub", "new", "report.png"), true},
		{"dir itself", dir, true},
		{"parent", filepath.Join(dir, ".."), false},
		{"traversal", filepath.Join(dir, "sub", "..", "..", "etc", "passwd"), false},
		{"absolute elsewhere", "/etc/passwd", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, dir)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrPathEscape)
			}
		})
	}
}

func TestValidatePathRejectsSymlinkedParent(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(dir, "evil")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	assert.ErrorIs(t, ValidatePathWithinDirectory(filepath.Join(link, "new.txt"), dir), ErrPathEscape)
}

func TestValidatePathMissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	assert.Error(t, ValidatePathWithinDirectory(filepath.Join(missing, "f"), missing))
}

func TestValidateExportPath(t *testing.T) {
	assert.NoError(t, ValidateExportPath(filepath.Join(os.TempDir(), "session.png")))
	assert.NoError(t, ValidateExportPath("session.json"))
	assert.ErrorIs(t, ValidateExportPath("/proc/self/status"), ErrPathEscape)
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"left":          "left",
		"cam-2.front":   "cam-2.front",
		"../etc/passwd": "etc_passwd",
		"a  b//c":       "a_b_c",
		"":              "unknown",
		"...":           "unknown",
		"caméra":        "cam_ra",
		"_left_":        "left",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), "input %q", in)
	}
	assert.Len(t, SanitizeFilename(strings.Repeat("x", 500)), maxFilenameLen)
}

func TestCameraFile(t *testing.T) {
	dir := t.TempDir()
	path, err := CameraFile(dir, "left", "_matrix.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "left_matrix.txt"), path)

	path, err = CameraFile(dir, "../../right", "_distortion.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "right_distortion.txt"), path)
}
