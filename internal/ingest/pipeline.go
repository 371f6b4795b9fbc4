package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/joeblew999/plat-layers/internal/gis"
	"github.com/joeblew999/plat-layers/internal/pointcloud"
	"github.com/joeblew999/plat-layers/internal/storage"
	"github.com/joeblew999/plat-layers/internal/tiler"
)

// LayerRecord is one persistable layer produced by an ingestion. Most
// ingestions yield exactly one; multi-sublayer KML yields several.
type LayerRecord struct {
	ID         string
	Name       string
	LayerType  LayerType
	SourceKind SourceKind
	Metadata   Metadata

	// Artifact keys, set per layer type. Raster COG keys are attached
	// lazily on first serving request, so RasterCOGPending marks them.
	PMTilesKey       string
	PointCloudKey    string
	SourceKey        string
	UploadKey        string
	RasterCOGPending bool

	// RemoteURL is set for remote sources, including cloud-native ones
	// served by range reads without local materialization.
	RemoteURL string
}

// Result is the orchestrator's output, handed to persistence.
type Result struct {
	Layers []LayerRecord
}

// Pipeline sequences classification, normalization, extraction and
// artifact builds. All collaborators are injected; the pipeline holds no
// ambient global state.
type Pipeline struct {
	Guard      *Guard
	Normalizer *Normalizer
	Extractor  *Extractor
	Tiles      *tiler.Builder
	PointCloud *pointcloud.Normalizer
	Bucket     storage.Bucket
	HTTP       *http.Client
	Bus        *Bus
	Log        *slog.Logger

	// TempDir roots per-ingestion work dirs; "" uses the OS default.
	TempDir string
	// MaxRemoteBytes caps remote downloads when > 0.
	MaxRemoteBytes int64
}

var pointCloudExtensions = map[string]bool{".las": true, ".laz": true}

// IngestUpload runs the pipeline over an uploaded byte stream. The work
// dir and everything in it is removed on all exit paths; only uploaded
// artifacts survive the call.
func (p *Pipeline) IngestUpload(ctx context.Context, name, filename string, body io.Reader) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	id := NewLayerID()
	log := p.runLogger(id)
	log.Info("ingestion started", "source", "upload", "filename", filename)

	workDir, err := os.MkdirTemp(p.TempDir, "ingest-"+id+"-")
	if err != nil {
		return nil, Wrap(KindToolFailed, err, "creating work dir")
	}
	defer os.RemoveAll(workDir)

	src := filepath.Join(workDir, "source"+ext)
	if err := writeFile(src, body); err != nil {
		return nil, Wrap(KindToolFailed, err, "materializing upload")
	}

	uploadKey := storage.UploadKey(id, ext)
	if err := p.Bucket.PutFile(ctx, uploadKey, src, storage.ContentTypeForKey(uploadKey)); err != nil {
		return nil, Wrap(KindToolFailed, err, "storing original upload")
	}

	base := LayerRecord{
		ID:         id,
		Name:       name,
		SourceKind: SourceUploaded,
		UploadKey:  uploadKey,
	}
	res, err := p.ingestLocal(ctx, base, src, ext, filename, workDir)
	if err != nil {
		log.Error("ingestion failed", "error", err)
		p.publish(id, "failed", err.Error())
		return nil, err
	}
	log.Info("ingestion complete", "layers", len(res.Layers))
	p.publish(id, "done", "")
	return res, nil
}

// IngestRemote classifies, validates and ingests a remote reference.
func (p *Pipeline) IngestRemote(ctx context.Context, name, url string, declared DeclaredType) (*Result, error) {
	source, err := Classify(url, declared)
	if err != nil {
		return nil, err
	}
	id := NewLayerID()
	p.runLogger(id).Info("ingestion started", "source", source.Kind.String(), "url", url)
	p.publish(id, "classify", source.Kind.String())

	// Every remote kind passes the guard before any byte is fetched,
	// even kinds OGR fetches for us. Once "classify" has been published
	// every exit path terminates the event stream.
	if _, err := p.Guard.Validate(ctx, innerHTTPURL(source.URL)); err != nil {
		p.publish(id, "failed", err.Error())
		return nil, err
	}

	var res *Result
	switch source.Kind {
	case SourceRemoteCloudNative:
		res, err = p.ingestCloudNative(ctx, id, name, source)

	case SourceRemoteCSV:
		res, err = p.ingestRemoteOGR(ctx, id, name, source, true)

	case SourceRemoteWFS, SourceRemoteESRI:
		res, err = p.ingestRemoteOGR(ctx, id, name, source, false)

	default:
		res, err = p.ingestRemoteHTTP(ctx, id, name, source)
	}
	if err != nil {
		p.publish(id, "failed", err.Error())
		return nil, err
	}
	return res, nil
}

// ingestCloudNative records the layer without materializing anything:
// COG and PMTiles are served straight off the remote via range reads.
func (p *Pipeline) ingestCloudNative(ctx context.Context, id, name string, source LayerSource) (*Result, error) {
	rec := LayerRecord{
		ID:         id,
		Name:       name,
		LayerType:  source.LayerType,
		SourceKind: source.Kind,
		RemoteURL:  source.URL,
		Metadata: Metadata{
			GeometryType:   GeomUnknown,
			OriginalFormat: string(source.CloudNative),
		},
	}
	p.publish(id, "done", "")
	return &Result{Layers: []LayerRecord{rec}}, nil
}

// ingestRemoteOGR hands a driver-prefixed remote descriptor straight to
// the converter, skipping local download. probeSize HEAD-checks the
// inner URL first (spreadsheet exports can be arbitrarily large).
func (p *Pipeline) ingestRemoteOGR(ctx context.Context, id, name string, source LayerSource, probeSize bool) (*Result, error) {
	if probeSize {
		if err := p.probeRemoteSize(ctx, innerHTTPURL(source.URL)); err != nil {
			return nil, err
		}
	}

	workDir, err := os.MkdirTemp(p.TempDir, "ingest-"+id+"-")
	if err != nil {
		return nil, Wrap(KindToolFailed, err, "creating work dir")
	}
	defer os.RemoveAll(workDir)

	p.publish(id, "normalize", "")
	dst := filepath.Join(workDir, "normalized.fgb")
	opts := normalizeRemoteOptions(source)
	if err := p.Normalizer.OGR.Convert(ctx, dst, ogrDescriptor(source), opts); err != nil {
		return nil, Wrap(KindToolFailed, err, "converting remote source")
	}

	base := LayerRecord{
		ID:         id,
		Name:       name,
		SourceKind: source.Kind,
		RemoteURL:  source.URL,
	}
	res, err := p.ingestVector(ctx, base, []NormalizedSource{{Path: dst, Ext: ".fgb"}}, "", workDir)
	if err != nil {
		return nil, err
	}
	p.publish(id, "done", "")
	return res, nil
}

// ingestRemoteHTTP downloads a plain file and continues as an upload.
func (p *Pipeline) ingestRemoteHTTP(ctx context.Context, id, name string, source LayerSource) (*Result, error) {
	workDir, err := os.MkdirTemp(p.TempDir, "ingest-"+id+"-")
	if err != nil {
		return nil, Wrap(KindToolFailed, err, "creating work dir")
	}
	defer os.RemoveAll(workDir)

	trimmed, _, _ := strings.Cut(source.URL, "?")
	ext := strings.ToLower(filepath.Ext(trimmed))

	p.publish(id, "fetch", source.URL)
	src := filepath.Join(workDir, "source"+ext)
	if err := p.download(ctx, src, source.URL); err != nil {
		return nil, err
	}

	uploadKey := storage.UploadKey(id, ext)
	if err := p.Bucket.PutFile(ctx, uploadKey, src, storage.ContentTypeForKey(uploadKey)); err != nil {
		return nil, Wrap(KindToolFailed, err, "storing fetched source")
	}

	base := LayerRecord{
		ID:         id,
		Name:       name,
		SourceKind: source.Kind,
		RemoteURL:  source.URL,
		UploadKey:  uploadKey,
	}
	res, err := p.ingestLocal(ctx, base, src, ext, filepath.Base(trimmed), workDir)
	if err != nil {
		return nil, err
	}
	p.publish(id, "done", "")
	return res, nil
}

// ingestLocal branches by layer type over a locally materialized file.
func (p *Pipeline) ingestLocal(ctx context.Context, base LayerRecord, src, ext, filename, workDir string) (*Result, error) {
	base.Metadata.OriginalFilename = filename
	base.Metadata.OriginalFormat = strings.TrimPrefix(ext, ".")

	switch {
	case pointCloudExtensions[ext]:
		return p.ingestPointCloud(ctx, base, src, workDir)
	case rasterExtensions[ext]:
		return p.ingestRaster(ctx, base, src)
	default:
		p.publish(base.ID, "normalize", ext)
		sources, err := p.Normalizer.Normalize(ctx, src, ext, workDir)
		if err != nil {
			return nil, err
		}
		return p.ingestVector(ctx, base, sources, ext, workDir)
	}
}

// ingestVector extracts metadata and builds tile archives for each
// normalized source. Multi-source expansions give every sublayer its own
// layer ID; empty sublayers are skipped, but a fully empty ingestion is
// rejected before any tile build runs.
func (p *Pipeline) ingestVector(ctx context.Context, base LayerRecord, sources []NormalizedSource, ext, workDir string) (*Result, error) {
	var layers []LayerRecord
	for i, ns := range sources {
		rec := base
		rec.LayerType = LayerVector
		if i > 0 {
			rec.ID = NewLayerID()
			// The stored upload belongs to the first record; siblings
			// holding the key too would each delete the shared object.
			rec.UploadKey = ""
		}
		if ns.Layer != "" {
			rec.Name = fmt.Sprintf("%s: %s", base.Name, ns.Layer)
		}

		p.publish(rec.ID, "extract", ns.Layer)
		rec.Metadata = p.Extractor.ExtractVector(ctx, ns)
		rec.Metadata.OriginalFilename = base.Metadata.OriginalFilename
		rec.Metadata.OriginalFormat = base.Metadata.OriginalFormat
		if ns.Ext != ext && ns.Ext != "" {
			rec.Metadata.ConvertedTo = strings.TrimPrefix(ns.Ext, ".")
		}

		if rec.Metadata.FeatureCount != nil && *rec.Metadata.FeatureCount == 0 {
			if len(sources) > 1 {
				continue // empty sublayer in a one-to-many expansion
			}
			return nil, Errf(KindEmptyDataset, "dataset has zero features")
		}

		rec.SourceKey = storage.SourceKey(rec.ID)
		if err := p.Bucket.PutFile(ctx, rec.SourceKey, ns.Path, storage.ContentTypeForKey(rec.SourceKey)); err != nil {
			return nil, Wrap(KindToolFailed, err, "storing normalized source")
		}

		p.publish(rec.ID, "build", "pmtiles")
		var count int64
		if rec.Metadata.FeatureCount != nil {
			count = *rec.Metadata.FeatureCount
		}
		tilePath := filepath.Join(workDir, fmt.Sprintf("tiles_%d.pmtiles", i))
		err := p.Tiles.Build(ctx, tilePath, ns.Path, workDir, tiler.Options{
			Layer:        ns.Layer,
			TileLayer:    "layer",
			FeatureCount: count,
		})
		if err != nil {
			return nil, Wrap(KindTileBuildFailed, err, "building tiles")
		}

		rec.PMTilesKey = storage.PMTilesKey(rec.ID)
		if err := p.Bucket.PutFile(ctx, rec.PMTilesKey, tilePath, storage.ContentTypeForKey(rec.PMTilesKey)); err != nil {
			return nil, Wrap(KindToolFailed, err, "storing tile archive")
		}
		layers = append(layers, rec)
	}

	if len(layers) == 0 {
		return nil, Errf(KindEmptyDataset, "dataset has zero features")
	}
	return &Result{Layers: layers}, nil
}

// ingestRaster extracts metadata only. The COG itself is built lazily on
// first serving request from the stored upload.
func (p *Pipeline) ingestRaster(ctx context.Context, base LayerRecord, src string) (*Result, error) {
	p.publish(base.ID, "extract", "raster")
	rec := base
	rec.LayerType = LayerRaster
	md := p.Extractor.ExtractRaster(ctx, src)
	md.OriginalFilename = base.Metadata.OriginalFilename
	md.OriginalFormat = base.Metadata.OriginalFormat
	rec.Metadata = md
	rec.RasterCOGPending = true
	return &Result{Layers: []LayerRecord{rec}}, nil
}

func (p *Pipeline) ingestPointCloud(ctx context.Context, base LayerRecord, src, workDir string) (*Result, error) {
	p.publish(base.ID, "build", "pointcloud")
	res, err := p.PointCloud.Normalize(ctx, base.ID, src, workDir)
	if err != nil {
		if errors.Is(err, pointcloud.ErrMissingCRS) {
			return nil, Wrap(KindMissingCRS, err, "point cloud rejected")
		}
		return nil, Wrap(KindToolFailed, err, "normalizing point cloud")
	}

	rec := base
	rec.LayerType = LayerPointCloud
	rec.PointCloudKey = res.Key
	bounds := Bounds(res.Bounds)
	rec.Metadata.GeometryType = GeomPoint
	rec.Metadata.FeatureCount = &res.PointCount
	rec.Metadata.Bounds = &bounds
	rec.Metadata.ZRange = &res.ZRange
	if res.SourceEPSG != 0 {
		srid := res.SourceEPSG
		rec.Metadata.OriginalSRID = &srid
	}
	rec.Metadata.ConvertedTo = "laz"
	return &Result{Layers: []LayerRecord{rec}}, nil
}

// probeRemoteSize HEAD-checks a remote resource against MaxRemoteBytes.
// The guard has already validated the URL when this runs.
func (p *Pipeline) probeRemoteSize(ctx context.Context, url string) error {
	if p.MaxRemoteBytes <= 0 {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return Wrap(KindMalformedURL, err, "building size probe")
	}
	resp, err := p.httpClient().Do(req)
	if err != nil {
		return Wrap(KindToolFailed, err, "probing remote size")
	}
	resp.Body.Close()
	if resp.ContentLength > p.MaxRemoteBytes {
		return Errf(KindInvalidSourceFormat, "remote source is %d bytes, limit %d",
			resp.ContentLength, p.MaxRemoteBytes)
	}
	return nil
}

func (p *Pipeline) download(ctx context.Context, dst, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Wrap(KindMalformedURL, err, "building fetch request")
	}
	resp, err := p.httpClient().Do(req)
	if err != nil {
		return Wrap(KindToolFailed, err, "fetching remote source")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Errf(KindToolFailed, "remote source returned %s", resp.Status)
	}

	var body io.Reader = resp.Body
	if p.MaxRemoteBytes > 0 {
		body = io.LimitReader(resp.Body, p.MaxRemoteBytes+1)
	}
	if err := writeFile(dst, body); err != nil {
		return Wrap(KindToolFailed, err, "writing fetched source")
	}
	if p.MaxRemoteBytes > 0 {
		if st, err := os.Stat(dst); err == nil && st.Size() > p.MaxRemoteBytes {
			return Errf(KindInvalidSourceFormat, "remote source exceeds %d byte limit", p.MaxRemoteBytes)
		}
	}
	return nil
}

func (p *Pipeline) httpClient() *http.Client {
	if p.HTTP != nil {
		return p.HTTP
	}
	return http.DefaultClient
}

// runLogger tags a run-scoped logger so the lines of one ingestion can
// be correlated in aggregated logs.
func (p *Pipeline) runLogger(layerID string) *slog.Logger {
	log := p.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return log.With("ingest_id", uuid.NewString(), "layer", layerID)
}

func (p *Pipeline) publish(layerID, stage, detail string) {
	if p.Bus != nil {
		p.Bus.Publish(Progress{LayerID: layerID, Stage: stage, Detail: detail})
	}
	if p.Log != nil {
		p.Log.Info("ingest progress", "layer", layerID, "stage", stage, "detail", detail)
	}
}

// innerHTTPURL strips driver prefixes so the guard sees the real target.
func innerHTTPURL(url string) string {
	for _, prefix := range []string{"CSV:", "WFS:", "ESRIJSON:"} {
		url = strings.TrimPrefix(url, prefix)
	}
	return strings.TrimPrefix(url, "/vsicurl/")
}

// ogrDescriptor is the connection string the converter opens. ESRI query
// URLs get the driver prefix when the caller omitted it.
func ogrDescriptor(source LayerSource) string {
	if source.Kind == SourceRemoteESRI && !strings.HasPrefix(source.URL, "ESRIJSON:") {
		return "ESRIJSON:" + source.URL
	}
	if source.Kind == SourceRemoteCSV && !strings.HasPrefix(source.URL, "CSV:") {
		return "CSV:/vsicurl/" + source.URL
	}
	return source.URL
}

func normalizeRemoteOptions(source LayerSource) gis.ConvertOptions {
	opts := gis.ConvertOptions{
		Format:       "FlatGeobuf",
		SpatialIndex: true,
	}
	if source.Kind == SourceRemoteCSV {
		opts.CSVColumns = true
		opts.AssignSRS = "EPSG:4326"
	}
	return opts
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
