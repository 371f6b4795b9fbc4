package ingest

import (
	"path"
	"strings"
)

// LayerType is the declared or inferred kind of a layer.
type LayerType string

const (
	LayerVector     LayerType = "vector"
	LayerRaster     LayerType = "raster"
	LayerPointCloud LayerType = "point_cloud"
)

// DeclaredType is what the caller claims the remote source is.
type DeclaredType string

const (
	DeclaredVector DeclaredType = "vector"
	DeclaredRaster DeclaredType = "raster"
	DeclaredSheets DeclaredType = "sheets"
)

// SourceKind is the protocol family of a remote reference.
type SourceKind int

const (
	SourceUploaded SourceKind = iota
	SourceRemoteHTTP
	SourceRemoteCSV
	SourceRemoteWFS
	SourceRemoteESRI
	SourceRemoteCloudNative
)

func (k SourceKind) String() string {
	switch k {
	case SourceUploaded:
		return "uploaded"
	case SourceRemoteHTTP:
		return "remote_http"
	case SourceRemoteCSV:
		return "remote_csv"
	case SourceRemoteWFS:
		return "remote_wfs"
	case SourceRemoteESRI:
		return "remote_esri"
	case SourceRemoteCloudNative:
		return "remote_cloud_native"
	default:
		return "unknown"
	}
}

// CloudNativeKind distinguishes range-served artifact formats.
type CloudNativeKind string

const (
	CloudNativeCOG     CloudNativeKind = "cog"
	CloudNativePMTiles CloudNativeKind = "pmtiles"
)

// LayerSource describes where raw bytes come from. Immutable once
// classified; it lives for one ingestion request.
type LayerSource struct {
	Kind      SourceKind
	LayerType LayerType

	// URL is set for all remote kinds. For WFS/ESRI/CSV sources it keeps
	// any driver prefix the caller supplied, ready to hand to OGR.
	URL string

	// Filename is set for uploads.
	Filename string

	// CloudNative is set when Kind is SourceRemoteCloudNative.
	CloudNative CloudNativeKind
}

var rasterExtensions = map[string]bool{
	".tif": true, ".tiff": true, ".jpg": true, ".jpeg": true,
	".png": true, ".dem": true,
}

// Classify determines the protocol family of a remote reference. Decision
// order matters; the first matching rule wins.
func Classify(url string, declared DeclaredType) (LayerSource, error) {
	lower := strings.ToLower(url)

	if strings.HasPrefix(url, "CSV:/vsicurl/") {
		if declared != DeclaredSheets {
			return LayerSource{}, Errf(KindInvalidSourceFormat,
				"CSV virtual source requires sheets source type, got %q", declared)
		}
		return LayerSource{Kind: SourceRemoteCSV, LayerType: LayerVector, URL: url}, nil
	}

	if strings.HasPrefix(url, "WFS:") &&
		strings.Contains(lower, "service=wfs") &&
		strings.Contains(lower, "request=getfeature") {
		return LayerSource{Kind: SourceRemoteWFS, LayerType: LayerVector, URL: url}, nil
	}

	if strings.HasPrefix(url, "ESRIJSON:") || isESRIQueryURL(lower) {
		return LayerSource{Kind: SourceRemoteESRI, LayerType: LayerVector, URL: url}, nil
	}

	trimmed, _, _ := strings.Cut(lower, "?")
	ext := path.Ext(strings.TrimSuffix(trimmed, "/"))
	switch ext {
	case ".pmtiles":
		return LayerSource{Kind: SourceRemoteCloudNative, LayerType: LayerVector, URL: url, CloudNative: CloudNativePMTiles}, nil
	case ".tif", ".tiff":
		return LayerSource{Kind: SourceRemoteCloudNative, LayerType: LayerRaster, URL: url, CloudNative: CloudNativeCOG}, nil
	}

	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return LayerSource{}, Errf(KindInvalidURLFormat,
			"remote source must be an http(s) URL, got %q", url)
	}
	return LayerSource{Kind: SourceRemoteHTTP, LayerType: inferLayerType(declared, ext), URL: url}, nil
}

func isESRIQueryURL(lower string) bool {
	for _, svc := range []string{"/featureserver", "/mapserver"} {
		idx := strings.Index(lower, svc)
		if idx >= 0 && strings.Contains(lower[idx:], "/query") {
			return true
		}
	}
	return false
}

// inferLayerType trusts the declared type when it is decisive, and falls
// back to the file extension for a generic "vector" declaration.
func inferLayerType(declared DeclaredType, ext string) LayerType {
	switch declared {
	case DeclaredRaster:
		return LayerRaster
	case DeclaredSheets:
		return LayerVector
	}
	if rasterExtensions[ext] {
		return LayerRaster
	}
	return LayerVector
}
