package gis

import "context"

// TippecanoeOptions controls tile pyramid generation.
type TippecanoeOptions struct {
	// ZoomGuess lets tippecanoe pick a max zoom from feature density.
	// Disabled for trivially small datasets where -zg misbehaves.
	ZoomGuess bool
	Layer     string
}

// Tippecanoe builds a PMTiles pyramid from line-delimited GeoJSON.
type Tippecanoe struct {
	Runner Runner
}

func (t *Tippecanoe) Build(ctx context.Context, dst, src string, opts TippecanoeOptions) error {
	args := []string{"-q"}
	if opts.ZoomGuess {
		args = append(args, "-zg")
	}
	if opts.Layer != "" {
		args = append(args, "-l", opts.Layer)
	}
	args = append(args,
		"--drop-densest-as-needed",
		"-o", dst,
		"--force",
		src)
	_, _, err := t.Runner.Run(ctx, nil, "tippecanoe", args...)
	return err
}
