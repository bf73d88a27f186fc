//go:build gocv

package main

import (
	"github.com/nvr-ai/go-glitch/config"
	"github.com/nvr-ai/go-glitch/images"
)

func newEdgeDetector(cfg *config.Config) images.EdgeDetector {
	if !cfg.Edges.Enabled {
		return nil
	}
	return images.GoCVEdgeDetector{Threshold: cfg.Edges.Threshold}
}
