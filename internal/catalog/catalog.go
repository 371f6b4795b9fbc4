// Package catalog persists layer records in DuckDB. The pipeline itself
// is pure transformation; this is the row store its results land in.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joeblew999/plat-layers/internal/ingest"
)

var ErrNotFound = errors.New("layer not found")

const schema = `
CREATE TABLE IF NOT EXISTS layers (
	id          VARCHAR PRIMARY KEY,
	name        VARCHAR NOT NULL,
	layer_type  VARCHAR NOT NULL,
	source_kind VARCHAR NOT NULL,
	remote_url  VARCHAR,
	metadata    JSON NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS layer_styles (
	layer_id VARCHAR PRIMARY KEY,
	style    JSON NOT NULL
);
`

// Layer is a persisted layer row. Metadata carries the extracted facts
// and artifact keys as one JSON blob, patched in place as artifacts are
// attached after ingestion.
type Layer struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	LayerType  string         `json:"layer_type"`
	SourceKind string         `json:"source_kind"`
	RemoteURL  string         `json:"remote_url,omitempty"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
}

type Catalog struct {
	db *sql.DB
}

func New(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

// Init creates the tables.
func (c *Catalog) Init(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

// Insert writes one pipeline result layer and seeds its default style.
func (c *Catalog) Insert(ctx context.Context, rec ingest.LayerRecord) error {
	meta, err := json.Marshal(metadataJSON(rec))
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO layers (id, name, layer_type, source_kind, remote_url, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, string(rec.LayerType), rec.SourceKind.String(),
		rec.RemoteURL, string(meta), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("inserting layer %s: %w", rec.ID, err)
	}

	style, err := json.Marshal(DefaultStyle(rec))
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO layer_styles (layer_id, style) VALUES (?, ?)`,
		rec.ID, string(style))
	return err
}

func (c *Catalog) Get(ctx context.Context, id string) (*Layer, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, name, layer_type, source_kind, coalesce(remote_url, ''), metadata, created_at
		 FROM layers WHERE id = ?`, id)
	return scanLayer(row)
}

func (c *Catalog) List(ctx context.Context) ([]Layer, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, layer_type, source_kind, coalesce(remote_url, ''), metadata, created_at
		 FROM layers ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Layer
	for rows.Next() {
		l, err := scanLayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (c *Catalog) Delete(ctx context.Context, id string) error {
	c.db.ExecContext(ctx, `DELETE FROM layer_styles WHERE layer_id = ?`, id)
	res, err := c.db.ExecContext(ctx, `DELETE FROM layers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PatchMetadata merges fields into the metadata blob as a single
// conditional update. Concurrent field-level patches for the same layer
// resolve last-write-wins per field, which is the accepted race when an
// artifact key is attached after ingestion.
func (c *Catalog) PatchMetadata(ctx context.Context, id string, patch map[string]any) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx,
		`UPDATE layers SET metadata = json_merge_patch(metadata, ?) WHERE id = ?`,
		string(raw), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachCOGKey records a lazily built COG artifact.
func (c *Catalog) AttachCOGKey(ctx context.Context, id, key string) error {
	return c.PatchMetadata(ctx, id, map[string]any{"cog_key": key, "cog_pending": false})
}

// Style returns the stored MapLibre style JSON for a layer.
func (c *Catalog) Style(ctx context.Context, id string) (json.RawMessage, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT style FROM layer_styles WHERE layer_id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLayer(row rowScanner) (*Layer, error) {
	var l Layer
	var meta string
	err := row.Scan(&l.ID, &l.Name, &l.LayerType, &l.SourceKind, &l.RemoteURL, &meta, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(meta), &l.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata for %s: %w", l.ID, err)
	}
	return &l, nil
}

// metadataJSON flattens a pipeline record into the stored blob.
func metadataJSON(rec ingest.LayerRecord) map[string]any {
	md := rec.Metadata
	out := map[string]any{
		"geometry_type": string(md.GeometryType),
	}
	if md.FeatureCount != nil {
		out["feature_count"] = *md.FeatureCount
	}
	if md.Bounds != nil {
		out["bounds"] = *md.Bounds
	}
	if md.OriginalSRID != nil {
		out["original_srid"] = *md.OriginalSRID
	}
	if md.RasterStats != nil {
		out["raster_value_stats_b1"] = md.RasterStats
	}
	if md.ZRange != nil {
		out["z_range"] = *md.ZRange
	}
	if md.OriginalFilename != "" {
		out["original_filename"] = md.OriginalFilename
	}
	if md.OriginalFormat != "" {
		out["original_format"] = md.OriginalFormat
	}
	if md.ConvertedTo != "" {
		out["converted_to"] = md.ConvertedTo
	}
	if rec.PMTilesKey != "" {
		out["pmtiles_key"] = rec.PMTilesKey
	}
	if rec.PointCloudKey != "" {
		out["pointcloud_key"] = rec.PointCloudKey
	}
	if rec.SourceKey != "" {
		out["source_key"] = rec.SourceKey
	}
	if rec.UploadKey != "" {
		out["upload_key"] = rec.UploadKey
	}
	if rec.RasterCOGPending {
		out["cog_pending"] = true
	}
	return out
}
