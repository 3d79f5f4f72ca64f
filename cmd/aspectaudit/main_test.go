package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/dunamismax/derivatives/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, nil))
}

func TestAuditCommandNativeJSON(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "p1.jpg"), 40, 50)
	writeJPEG(t, filepath.Join(dir, "p2.jpg"), 80, 100)
	writeJPEG(t, filepath.Join(dir, "s1.jpg"), 60, 60)
	writeJPEG(t, filepath.Join(dir, "wide.jpg"), 90, 60)

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--backend", "native", "--json", dir})
	require.NoError(t, cmd.Execute())

	var report audit.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 4, report.Scanned)
	require.Len(t, report.Groups, 3)
	assert.Equal(t, 2, report.Groups[0].Count)
	assert.Equal(t, 1, report.Groups[1].Count)
	assert.Equal(t, 0, report.Groups[2].Count)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, "wide.jpg", report.Rejected[0].File)
}

func TestAuditCommandRequiresPath(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
}
