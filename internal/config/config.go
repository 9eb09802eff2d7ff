package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port          int              `json:"port"`
	DBPath        string           `json:"db_path"`
	PDFDir        string           `json:"pdf_dir"`
	BuildDir      string           `json:"build_dir"`
	CORSAllowlist []string         `json:"cors_allowlist"`
	LogConfig     logger.LogConfig `json:"log_config"`
	ImageStore    ImageStoreConfig `json:"image_store"`
	Extract       ExtractConfig    `json:"extract"`
	Chunk         ChunkConfig      `json:"chunk"`
	Embed         AIConfig         `json:"embed"`
	Generate      AIConfig         `json:"generate"`
	Retrieval     RetrievalConfig  `json:"retrieval"`
	// ReloadSpec is the cron spec for picking up rebuilt index files while
	// serving; empty disables the reload job.
	ReloadSpec string `json:"reload_spec"`
}

type ImageStoreConfig struct {
	Type      string      `json:"type"`
	PublicURL string      `json:"public_url"`
	Data      interface{} `json:"data"`
}

type ExtractConfig struct {
	DPI        int    `json:"dpi"`
	Lang       string `json:"lang"`
	ForceOCR   bool   `json:"force_ocr"`
	DisableOCR bool   `json:"disable_ocr"`
	// RenderPages persists a rendered thumbnail for every page, not just the
	// ones that go through OCR.
	RenderPages   bool   `json:"render_pages"`
	TesseractPath string `json:"tesseract_path"`
	// ScannedTextThreshold is the native-text character count below which a
	// page is treated as scanned and routed to OCR.
	ScannedTextThreshold int `json:"scanned_text_threshold"`
	Workers              int `json:"workers"`
	MaxPages             int `json:"max_pages"`
}

type ChunkConfig struct {
	Window     int `json:"window"`
	Overlap    int `json:"overlap"`
	SnippetLen int `json:"snippet_len"`
}

type AIConfig struct {
	Provider      string      `json:"provider"`
	Model         string      `json:"model"`
	MaxInputChars int         `json:"max_input_chars"`
	BatchSize     int         `json:"batch_size"`
	Data          interface{} `json:"data"`
}

type RetrievalConfig struct {
	TopKEntities     int `json:"top_k_entities"`
	TopKPassages     int `json:"top_k_passages"`
	SnippetMax       int `json:"snippet_max"`
	MaxImagesPerPage int `json:"max_images_per_page"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db_path is required")
	}
	if cfg.PDFDir == "" {
		cfg.PDFDir = "pdfs"
	}
	if cfg.BuildDir == "" {
		cfg.BuildDir = "build"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.ImageStore.Type == "" {
		cfg.ImageStore.Type = "local"
		cfg.ImageStore.Data = map[string]interface{}{"dir": "images"}
	}
	if cfg.Extract.DPI == 0 {
		cfg.Extract.DPI = 300
	}
	if cfg.Extract.Lang == "" {
		cfg.Extract.Lang = "eng"
	}
	if cfg.Extract.TesseractPath == "" {
		cfg.Extract.TesseractPath = "tesseract"
	}
	if cfg.Extract.ScannedTextThreshold == 0 {
		cfg.Extract.ScannedTextThreshold = 50
	}
	if cfg.Extract.Workers == 0 {
		cfg.Extract.Workers = 4
	}
	if cfg.Chunk.Window == 0 {
		cfg.Chunk.Window = 1000
	}
	if cfg.Chunk.Overlap == 0 {
		cfg.Chunk.Overlap = 150
	}
	if cfg.Chunk.Overlap >= cfg.Chunk.Window {
		return nil, fmt.Errorf("chunk.overlap must be smaller than chunk.window")
	}
	if cfg.Chunk.SnippetLen == 0 {
		cfg.Chunk.SnippetLen = 280
	}
	if cfg.Embed.Provider == "" {
		return nil, fmt.Errorf("embed.provider is required")
	}
	if cfg.Embed.Model == "" {
		return nil, fmt.Errorf("embed.model is required")
	}
	if cfg.Embed.MaxInputChars == 0 {
		cfg.Embed.MaxInputChars = 8000
	}
	if cfg.Embed.BatchSize == 0 {
		cfg.Embed.BatchSize = 32
	}
	if cfg.Generate.Provider == "" {
		return nil, fmt.Errorf("generate.provider is required")
	}
	if cfg.Generate.Model == "" {
		return nil, fmt.Errorf("generate.model is required")
	}
	if cfg.Retrieval.TopKEntities == 0 {
		cfg.Retrieval.TopKEntities = 5
	}
	if cfg.Retrieval.TopKPassages == 0 {
		cfg.Retrieval.TopKPassages = 8
	}
	if cfg.Retrieval.SnippetMax == 0 {
		cfg.Retrieval.SnippetMax = 280
	}
	if cfg.Retrieval.MaxImagesPerPage == 0 {
		cfg.Retrieval.MaxImagesPerPage = 6
	}
	return &cfg, nil
}

// LedgerPath is where the extractor writes page records.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.BuildDir, "raw_pages.jsonl")
}

// DiagPath is the extractor's human-readable diagnostics log.
func (c *Config) DiagPath() string {
	return filepath.Join(c.BuildDir, "extract.log")
}

// EntityIndexPath is the path prefix of the entity-level index pair.
func (c *Config) EntityIndexPath() string {
	return filepath.Join(c.BuildDir, "entities")
}

// PassageIndexPath is the path prefix of the passage-level index pair.
func (c *Config) PassageIndexPath() string {
	return filepath.Join(c.BuildDir, "pages")
}
