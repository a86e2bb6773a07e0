package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("CARVISION_CONFIG", "")
	t.Setenv("CARVISION_DOCUMENTS_DIR", filepath.Join(dir, "cars"))
	t.Setenv("CARVISION_OBJECTS_DIR", filepath.Join(dir, "images"))
	t.Setenv("CARVISION_LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newCommand()
	cmd.Writer = &out
	cmd.ErrWriter = &out
	cmd.ExitErrHandler = func(context.Context, *cli.Command, error) {}
	err := cmd.Run(context.Background(), append([]string{"carvision"}, args...))
	return out.String(), err
}

func TestCropCommand(t *testing.T) {
	dir := setupEnv(t)

	src := filepath.Join(dir, "m4.png")
	f, err := os.Create(src)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 400, 300))))
	require.NoError(t, f.Close())

	outDir := filepath.Join(dir, "out")
	out, err := run(t, "crop", "--out", outDir, "--format", "png", "--scale", "2", "--debug", src)
	require.NoError(t, err)
	assert.Contains(t, out, "region")
	assert.FileExists(t, filepath.Join(outDir, "m4_crop.png"))
	assert.FileExists(t, filepath.Join(outDir, "m4_crop_debug.png"))
}

func TestCropCommandRequiresImage(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "crop")
	assert.Error(t, err)
}

func TestListCommandEmpty(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "list", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
}

func TestConfigInit(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "carvision.yaml")

	out, err := run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, err = run(t, "config", "init", path)
	assert.Error(t, err, "existing config must not be overwritten")

	out, err = run(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"Backend": "ollama"`)
}

func TestFavoriteUnknownCar(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "favorite", "does-not-exist")
	assert.Error(t, err)
}
