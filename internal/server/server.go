package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-layers/internal/api"
	"github.com/joeblew999/plat-layers/internal/catalog"
	"github.com/joeblew999/plat-layers/internal/config"
	"github.com/joeblew999/plat-layers/internal/db"
	"github.com/joeblew999/plat-layers/internal/gis"
	"github.com/joeblew999/plat-layers/internal/ingest"
	"github.com/joeblew999/plat-layers/internal/pointcloud"
	"github.com/joeblew999/plat-layers/internal/raster"
	"github.com/joeblew999/plat-layers/internal/storage"
	"github.com/joeblew999/plat-layers/internal/tiler"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	LogFile string

	// S3Bucket switches artifact storage from the local data dir to an
	// S3-compatible bucket when set. Endpoint covers MinIO and R2.
	S3Bucket   string
	S3Region   string
	S3Endpoint string

	// MaxRemoteMB caps remote source downloads; 0 means unlimited.
	MaxRemoteMB int64
}

// Server is the layer ingestion HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	services *api.Services
	log      *slog.Logger
	closeLog func() error
}

// New creates a fully wired server. Every collaborator is constructed
// here; nothing reaches for package-level state.
func New(cfg Config) (*Server, error) {
	log, closeLog := config.SetupLogger(cfg.LogFile, slog.LevelInfo)

	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("plat-layers API", "1.0.0")
	humaConfig.Info.Description = "Geospatial layer ingestion API: uploads and remote sources in, FlatGeobuf, PMTiles, COG and LAZ artifacts out."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	bucket, err := newBucket(cfg)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("initializing artifact storage: %w", err)
	}

	conn, err := db.Open(db.Config{DataDir: cfg.DataDir, DBName: "layers"})
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}

	cat := catalog.New(conn)
	if err := cat.Init(context.Background()); err != nil {
		conn.Close()
		closeLog()
		return nil, fmt.Errorf("initializing catalog schema: %w", err)
	}

	runner := gis.NewExecRunner(log)
	ogr := &gis.OGR{Runner: runner}
	gdal := &gis.GDAL{Runner: runner}
	tippecanoe := &gis.Tippecanoe{Runner: runner}
	las := &gis.LAS{Runner: runner}

	rasterBuilder := &raster.Builder{GDAL: gdal, Bucket: bucket, Log: log}
	bus := ingest.NewBus()

	pipeline := &ingest.Pipeline{
		Guard:      ingest.NewGuard(),
		Normalizer: &ingest.Normalizer{OGR: ogr, Log: log},
		Extractor:  &ingest.Extractor{OGR: ogr, GDAL: gdal, Log: log},
		Tiles:      &tiler.Builder{OGR: ogr, Tippecanoe: tippecanoe, Log: log},
		PointCloud: &pointcloud.Normalizer{LAS: las, GDAL: gdal, Bucket: bucket, Log: log},
		Bucket:     bucket,
		Bus:        bus,
		Log:        log,
		TempDir:    filepath.Join(cfg.DataDir, "tmp"),
	}
	if cfg.MaxRemoteMB > 0 {
		pipeline.MaxRemoteBytes = cfg.MaxRemoteMB << 20
	}

	services := &api.Services{
		Catalog:  cat,
		Pipeline: pipeline,
		Raster:   rasterBuilder,
		Bucket:   bucket,
		Bus:      bus,
		Log:      log,
	}

	s := &Server{
		config:   cfg,
		mux:      mux,
		humaAPI:  humaAPI,
		db:       conn,
		services: services,
		log:      log,
		closeLog: closeLog,
	}

	s.routes()
	return s, nil
}

func newBucket(cfg Config) (storage.Bucket, error) {
	if cfg.S3Bucket != "" {
		return storage.NewS3Bucket(context.Background(), storage.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
	}
	return storage.NewLocalBucket(filepath.Join(cfg.DataDir, "objects"))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI exposes the generated spec for the CLI export subcommand.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Close closes server resources.
func (s *Server) Close() error {
	err := s.db.Close()
	if s.closeLog != nil {
		s.closeLog()
	}
	return err
}

func (s *Server) routes() {
	// OpenAPI-documented JSON endpoints.
	handler := api.RegisterRoutes(s.humaAPI, s.services)
	api.NewInfoHandler(s.config.DataDir, s.db != nil).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.db).RegisterRoutes(s.humaAPI)
	api.NewEventHandler(s.services).RegisterRoutes(s.humaAPI)

	// Multipart upload and byte-range artifact streaming stay on plain
	// mux handlers.
	s.mux.HandleFunc("POST /api/v1/layers/upload", handler.UploadHandler)
	api.NewArtifactHandler(s.services, filepath.Join(s.config.DataDir, "tmp")).Mount(s.mux)

	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, `{"service":"plat-layers","status":"running"}`)
}
