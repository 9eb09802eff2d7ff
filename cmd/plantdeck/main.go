package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/plantdeck/plantdeck/internal/ai"
	"github.com/plantdeck/plantdeck/internal/chunk"
	"github.com/plantdeck/plantdeck/internal/compose"
	"github.com/plantdeck/plantdeck/internal/config"
	"github.com/plantdeck/plantdeck/internal/extract"
	"github.com/plantdeck/plantdeck/internal/handler"
	"github.com/plantdeck/plantdeck/internal/imagestore"
	"github.com/plantdeck/plantdeck/internal/index"
	"github.com/plantdeck/plantdeck/internal/job"
	"github.com/plantdeck/plantdeck/internal/ledger"
	"github.com/plantdeck/plantdeck/internal/middleware"
	"github.com/plantdeck/plantdeck/internal/report"
	"github.com/plantdeck/plantdeck/internal/retrieval"
	"github.com/plantdeck/plantdeck/internal/schedule"
	"github.com/plantdeck/plantdeck/internal/store"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "plantdeck",
		Short: "plantdeck document ingestion and retrieval service",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	rootCmd.AddCommand(
		extractCmd(&configPath),
		indexCmd(&configPath),
		pageIndexCmd(&configPath),
		serveCmd(&configPath),
		askCmd(&configPath),
		reportCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

func newImageStore(cfg *config.Config) (imagestore.Store, error) {
	images, err := imagestore.New(cfg.ImageStore)
	if err != nil {
		return nil, fmt.Errorf("init image store: %w", err)
	}
	return images, nil
}

func newEmbedder(cfg *config.Config) (ai.IEmbedder, error) {
	args := cfg.Embed.Data
	if args == nil {
		args = cfg.Embed
	}
	provider, err := ai.NewProvider(cfg.Embed.Provider, args)
	if err != nil {
		return nil, fmt.Errorf("init embed provider: %w", err)
	}
	return ai.NewEmbedder(provider, cfg.Embed.Model), nil
}

func newGenerator(cfg *config.Config) (ai.IGenerator, error) {
	args := cfg.Generate.Data
	if args == nil {
		args = cfg.Generate
	}
	provider, err := ai.NewProvider(cfg.Generate.Provider, args)
	if err != nil {
		return nil, fmt.Errorf("init generate provider: %w", err)
	}
	return ai.NewGenerator(provider, cfg.Generate.Model), nil
}

func extractCmd(configPath *string) *cobra.Command {
	var only string
	var maxPages int
	var forceOCR, noOCR, renderPages bool
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "extract page records from source documents into the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			images, err := newImageStore(cfg)
			if err != nil {
				return err
			}
			diag, err := ledger.NewFileDiag(cfg.DiagPath())
			if err != nil {
				return fmt.Errorf("open diag log: %w", err)
			}
			defer diag.Close()
			w, err := ledger.NewWriter(cfg.LedgerPath())
			if err != nil {
				return err
			}
			defer w.Close()

			if maxPages > 0 {
				cfg.Extract.MaxPages = maxPages
			}
			if forceOCR {
				cfg.Extract.ForceOCR = true
			}
			if noOCR {
				cfg.Extract.DisableOCR = true
			}
			if renderPages {
				cfg.Extract.RenderPages = true
			}
			extractor := extract.New(images, diag, extract.Options{
				DPI:                  cfg.Extract.DPI,
				Lang:                 cfg.Extract.Lang,
				ForceOCR:             cfg.Extract.ForceOCR,
				DisableOCR:           cfg.Extract.DisableOCR,
				RenderPages:          cfg.Extract.RenderPages,
				ScannedTextThreshold: cfg.Extract.ScannedTextThreshold,
				Workers:              cfg.Extract.Workers,
				MaxPages:             cfg.Extract.MaxPages,
				TesseractPath:        cfg.Extract.TesseractPath,
			})
			return extractor.Run(cmd.Context(), cfg.PDFDir, only, w)
		},
	}
	cmd.Flags().StringVar(&only, "only", "", "only extract documents whose name contains this substring")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "cap on pages extracted per document")
	cmd.Flags().BoolVar(&forceOCR, "force-ocr", false, "run OCR on every page regardless of native text")
	cmd.Flags().BoolVar(&noOCR, "no-ocr", false, "never run OCR, keep native text as-is")
	cmd.Flags().BoolVar(&renderPages, "render", false, "persist a rendered thumbnail for every page")
	return cmd
}

func indexCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "build the entity-level embedding index from the structured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			embedder, err := newEmbedder(cfg)
			if err != nil {
				return err
			}
			db, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			rows, err := db.EntityRows(cmd.Context())
			if err != nil {
				return err
			}
			items := make([]index.Item[index.EntityMeta], 0, len(rows))
			for _, row := range rows {
				items = append(items, index.Item[index.EntityMeta]{
					Text: row.Text,
					Meta: index.EntityMeta{ID: row.ID, Label: row.Label},
				})
			}
			ix, err := index.Build(cmd.Context(), embedder, items, index.BuildOptions{
				MaxInputChars: cfg.Embed.MaxInputChars,
				BatchSize:     cfg.Embed.BatchSize,
			})
			if err != nil {
				return err
			}
			if err := ix.Save(cfg.EntityIndexPath()); err != nil {
				return err
			}
			logutil.GetLogger(cmd.Context()).Info("entity index built",
				zap.Int("rows", ix.Rows()), zap.String("model_version", ix.ModelVersion))
			return nil
		},
	}
}

func pageIndexCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "pageindex",
		Short: "build the passage-level embedding index from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			embedder, err := newEmbedder(cfg)
			if err != nil {
				return err
			}
			records, err := ledger.ReadRecords(cfg.LedgerPath())
			if err != nil {
				return err
			}
			pageImages, err := ledger.PageImages(cfg.LedgerPath())
			if err != nil {
				return err
			}
			chunker := chunk.New(cfg.Chunk.Window, cfg.Chunk.Overlap)
			var items []index.Item[index.PassageMeta]
			for _, rec := range records {
				for _, p := range chunker.Split(rec) {
					items = append(items, index.Item[index.PassageMeta]{
						Text: p.Text,
						Meta: index.PassageMeta{
							Document: p.Document,
							Page:     p.Page,
							Snippet:  chunk.Snippet(p.Text, cfg.Chunk.SnippetLen),
							Images:   pageImages[ledger.PageKey{Document: p.Document, Page: p.Page}],
						},
					})
				}
			}
			ix, err := index.Build(cmd.Context(), embedder, items, index.BuildOptions{
				MaxInputChars: cfg.Embed.MaxInputChars,
				BatchSize:     cfg.Embed.BatchSize,
			})
			if err != nil {
				return err
			}
			if err := ix.Save(cfg.PassageIndexPath()); err != nil {
				return err
			}
			logutil.GetLogger(cmd.Context()).Info("passage index built",
				zap.Int("rows", ix.Rows()), zap.String("model_version", ix.ModelVersion))
			return nil
		},
	}
}

func buildEngine(cfg *config.Config, db *store.SpeciesStore, images imagestore.Store) (*retrieval.Engine, error) {
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	resolve := func(name string) string { return images.URL(name, "") }
	engine := retrieval.NewEngine(embedder, db, resolve, retrieval.Options{
		TopKEntities:     cfg.Retrieval.TopKEntities,
		TopKPassages:     cfg.Retrieval.TopKPassages,
		SnippetMax:       cfg.Retrieval.SnippetMax,
		MaxImagesPerPage: cfg.Retrieval.MaxImagesPerPage,
	})

	logger := logutil.GetLogger(context.Background())
	entityIx, err := index.Load[index.EntityMeta](cfg.EntityIndexPath())
	if err != nil {
		logger.Warn("entity index not loaded, queries will fail until it is built", zap.Error(err))
	} else {
		engine.SetEntityIndex(entityIx)
	}
	passageIx, err := index.Load[index.PassageMeta](cfg.PassageIndexPath())
	if err != nil {
		logger.Warn("passage index not loaded, deep queries disabled", zap.Error(err))
	} else {
		engine.SetPassageIndex(passageIx)
	}
	return engine, nil
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the question answering server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			db, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()
			images, err := newImageStore(cfg)
			if err != nil {
				return err
			}
			engine, err := buildEngine(cfg, db, images)
			if err != nil {
				return err
			}
			generator, err := newGenerator(cfg)
			if err != nil {
				return err
			}
			composer := compose.New(generator)

			imagesAvailable := func() bool {
				m, err := ledger.PageImages(cfg.LedgerPath())
				return err == nil && len(m) > 0
			}
			deps := handler.RouterDeps{
				Ask:    handler.NewAskHandler(engine, composer),
				Plants: handler.NewPlantHandler(db),
				Images: handler.NewImageHandler(images),
				Health: handler.NewHealthHandler(engine, imagesAvailable),
			}

			web, err := webapi.NewEngine(
				"/",
				fmt.Sprintf("0.0.0.0:%d", cfg.Port),
				webapi.WithRegister(func(group *gin.RouterGroup) {
					handler.RegisterRoutes(group, deps)
				}),
				webapi.WithExtraMiddlewares(
					middleware.CORS(cfg.CORSAllowlist),
					gzip.Gzip(gzip.DefaultCompression),
				),
			)
			if err != nil {
				return fmt.Errorf("init web engine: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			scheduler := schedule.NewCronScheduler()
			if cfg.ReloadSpec != "" {
				reload := job.NewIndexReloadJob(engine, cfg.EntityIndexPath(), cfg.PassageIndexPath())
				if err := scheduler.AddJob(reload, cfg.ReloadSpec); err != nil {
					return err
				}
				scheduler.Start(ctx)
				defer scheduler.Stop()
			}

			logutil.GetLogger(ctx).Info("http server listening",
				zap.Int("port", cfg.Port), zap.String("model", engine.ModelVersion()))
			go func() {
				if err := web.Run(); err != nil && err != http.ErrServerClosed {
					logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
				}
			}()

			<-ctx.Done()
			logutil.GetLogger(context.Background()).Info("server stopping...")
			return nil
		},
	}
}

func askCmd(configPath *string) *cobra.Command {
	var deep bool
	var topK, topKPages int
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "answer one question from the command line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			db, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()
			images, err := newImageStore(cfg)
			if err != nil {
				return err
			}
			engine, err := buildEngine(cfg, db, images)
			if err != nil {
				return err
			}
			generator, err := newGenerator(cfg)
			if err != nil {
				return err
			}
			composer := compose.New(generator)

			bundle, err := engine.Query(cmd.Context(), retrieval.Request{
				Question:     args[0],
				TopKEntities: topK,
				Deep:         deep,
				TopKPassages: topKPages,
			})
			if err != nil {
				return err
			}
			answer, err := composer.Answer(cmd.Context(), args[0], bundle)
			if err != nil {
				return err
			}
			fmt.Println(answer)
			if len(bundle.Citations) > 0 {
				fmt.Println()
				fmt.Println("Sources:")
				for _, c := range bundle.Citations {
					fmt.Printf("  %s p%d\n", c.Document, c.Page)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&deep, "deep", false, "also search page-level passages")
	cmd.Flags().IntVar(&topK, "k", 0, "number of entity results")
	cmd.Flags().IntVar(&topKPages, "k-pages", 0, "number of passage results")
	return cmd
}

func reportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "print per-document extraction coverage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			rows, err := report.FromLedger(cfg.LedgerPath())
			if err != nil {
				return err
			}
			return report.Write(os.Stdout, rows)
		},
	}
}
