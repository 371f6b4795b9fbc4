package ingest

import (
	"context"
	"os"

	"github.com/joeblew999/plat-layers/internal/gis"
)

// scriptRunner fakes the external GIS tools. File-producing tools create
// their output path so later stages find a file on disk.
type scriptRunner struct {
	infoJSON      string // ogrinfo -json
	firstFeature  string // ogr2ogr ... /vsistdout/
	gdalJSON      string // gdalinfo -json
	gdalExactJSON string // gdalinfo -json -mm
	transformOut  string // gdaltransform
	lasReport     string // lasinfo64
	geojsonOut    string // content written for ogr2ogr .geojson outputs
	tippecanoeErr error

	calls []scriptCall
}

type scriptCall struct {
	name string
	args []string
}

func (s *scriptRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, scriptCall{name: name, args: args})

	switch name {
	case "ogrinfo":
		return []byte(s.infoJSON), nil, nil

	case "ogr2ogr":
		for _, a := range args {
			if a == "/vsistdout/" {
				return []byte(s.firstFeature), nil, nil
			}
		}
		// dst is the second-to-last positional arg unless a sublayer
		// name follows the src.
		dst := positionalDst(args)
		if dst != "" {
			content := "converted"
			if s.geojsonOut != "" && len(dst) > 8 && dst[len(dst)-8:] == ".geojson" {
				content = s.geojsonOut
			}
			os.WriteFile(dst, []byte(content), 0o644)
		}
		return nil, nil, nil

	case "gdalinfo":
		for _, a := range args {
			if a == "-mm" {
				return []byte(s.gdalExactJSON), nil, nil
			}
		}
		return []byte(s.gdalJSON), nil, nil

	case "gdaltransform":
		return []byte(s.transformOut), nil, nil

	case "gdalwarp", "gdal_translate":
		os.WriteFile(args[len(args)-1], []byte("raster"), 0o644)
		return nil, nil, nil

	case "tippecanoe":
		if s.tippecanoeErr != nil {
			return nil, nil, s.tippecanoeErr
		}
		os.WriteFile(flagValue(args, "-o"), []byte("PMTiles-archive"), 0o644)
		return nil, nil, nil

	case "lasinfo64":
		return []byte(s.lasReport), nil, nil

	case "las2las64":
		os.WriteFile(flagValue(args, "-o"), []byte("laz"), 0o644)
		return nil, nil, nil
	}
	return nil, nil, nil
}

func (s *scriptRunner) toolCalls(name string) []scriptCall {
	var out []scriptCall
	for _, c := range s.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// positionalDst finds the destination path in an ogr2ogr invocation: the
// first positional argument after the flags.
func positionalDst(args []string) string {
	takesValue := map[string]bool{
		"-f": true, "-t_srs": true, "-a_srs": true, "-nlt": true,
		"-oo": true, "-lco": true, "-limit": true,
	}
	for i := 0; i < len(args); i++ {
		a := args[i]
		if takesValue[a] {
			i++
			continue
		}
		if len(a) > 0 && a[0] == '-' {
			continue
		}
		return a
	}
	return ""
}

func flagValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

var _ gis.Runner = (*scriptRunner)(nil)
