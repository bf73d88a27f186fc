package main

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/nvr-ai/go-glitch/config"
	"github.com/nvr-ai/go-glitch/util"
)

// runWith runs an app built from appFlags with action and the given arguments.
func runWith(t *testing.T, action cli.ActionFunc, args ...string) error {
	t.Helper()
	app := &cli.App{Name: "glitch", Flags: appFlags(), Action: action}
	return app.Run(append([]string{"glitch"}, args...))
}

func TestLoadConfigFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "glitch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  workers: 2\n  seed: 5\n"), 0o644))

	var cfg *config.Config
	err := runWith(t, func(c *cli.Context) error {
		var err error
		cfg, err = loadConfig(c)
		return err
	}, "--config", path, "--model", "m.onnx", "--workers", "3", "--iou", "0.45", "--on-error", "skip", "--format", "webp", "--raw")
	require.NoError(t, err)

	assert.Equal(t, "m.onnx", cfg.Model.ModelPath)
	assert.Equal(t, 3, cfg.Pipeline.Workers, "flags win over the config file")
	assert.Equal(t, int64(5), cfg.Pipeline.Seed, "unset flags keep the config file value")
	assert.Equal(t, float32(0.45), cfg.NMS.IoUThreshold)
	assert.Equal(t, config.ErrorPolicySkip, cfg.Pipeline.OnError)
	assert.Equal(t, "webp", cfg.Format)
	assert.False(t, cfg.Edges.Enabled)
	assert.Nil(t, newEdgeDetector(cfg))
}

func TestLoadConfigInvalid(t *testing.T) {
	err := runWith(t, func(c *cli.Context) error {
		_, err := loadConfig(c)
		return err
	}, "--workers", "0")
	assert.Error(t, err)
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 9, A: 255})
	require.NoError(t, util.SaveImage(filepath.Join(dir, "a.png"), img))
	require.NoError(t, util.SaveImage(filepath.Join(dir, "b.png"), img))

	var files []util.ImageFile
	load := func(c *cli.Context) error {
		var err error
		files, err = loadFiles(c)
		return err
	}

	require.NoError(t, runWith(t, load, "--dir", dir))
	assert.Len(t, files, 2)

	require.NoError(t, runWith(t, load, filepath.Join(dir, "b.png")))
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(dir, "b.png"), files[0].Path)

	// The default batch lives under images/, which a temp working dir lacks.
	t.Chdir(t.TempDir())
	assert.Error(t, runWith(t, load))
}
