package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/folio/internal/platform"
)

func main() {
	count := flag.Int("count", 1000, "Number of pages to generate")
	writers := flag.Int("writers", 8, "Concurrent writers for the save phase")
	saves := flag.Int("saves", 100, "Pages saved through the service")
	keep := flag.Bool("keep", false, "Keep the benchmark repository after running")
	flag.Parse()

	// 1. Setup
	benchDir, err := os.MkdirTemp("", "folio_bench_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
		} else {
			fmt.Printf("Keeping bench dir: %s\n", benchDir)
		}
	}()

	fmt.Printf("Generating %d pages in %s...\n", *count, benchDir)
	startGen := time.Now()
	for i := 0; i < *count; i++ {
		dir := filepath.Join(benchDir, "pages", fmt.Sprintf("section-%d", i%20))
		if err := os.MkdirAll(dir, 0755); err != nil {
			panic(err)
		}
		content := fmt.Sprintf("---\ntitle: Page %d\ntags: [benchmark, test]\n---\n# Benchmark Page %d\nThis is a test page about wiki number %d.\n", i, i, i)
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("page-%d.md", i)), []byte(content), 0644); err != nil {
			panic(err)
		}
	}
	fmt.Printf("Generation took: %v\n", time.Since(startGen))

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg := platform.Config{RepoPath: benchDir, Cache: platform.CacheFile}
	open := func() *platform.App {
		app, err := platform.New(context.Background(), cfg,
			platform.WithLogger(logger),
			platform.WithAutoInit(true),
			platform.WithDevSafety(false),
		)
		if err != nil {
			panic(err)
		}
		return app
	}
	ctx := context.Background()

	// 2. Index build happens in New when search.db is fresh
	startOpen := time.Now()
	app := open()
	indexBuild := time.Since(startOpen)

	// 3. Navigation: cold builds the tree, warm reads nav.json from a new process
	startCold := time.Now()
	tree, err := app.Nav.Structure(ctx)
	if err != nil {
		panic(err)
	}
	cold := time.Since(startCold)
	app.Close()

	app = open()
	defer app.Close()
	startWarm := time.Now()
	if _, err := app.Nav.Structure(ctx); err != nil {
		panic(err)
	}
	warm := time.Since(startWarm)

	// 4. Search
	startSearch := time.Now()
	hits, err := app.Service.Search(ctx, "wiki", 20)
	if err != nil {
		panic(err)
	}
	searchTime := time.Since(startSearch)

	// 5. Concurrent saves contend for the repository lock
	startSave := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*writers)
	for i := 0; i < *saves; i++ {
		path := fmt.Sprintf("concurrent/page-%d", i)
		g.Go(func() error {
			_, err := app.Service.Save(gctx, path, fmt.Sprintf("# Concurrent %d\n", i), nil)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Printf("Save phase failed: %v\n", err)
	}
	saveTime := time.Since(startSave)

	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Benchmark Result (%d pages):\n", tree.Len())
	fmt.Printf("  Index build:  %v\n", indexBuild)
	fmt.Printf("  Nav cold:     %v\n", cold)
	fmt.Printf("  Nav warm:     %v\n", warm)
	fmt.Printf("  Search:       %v (%d hits)\n", searchTime, len(hits))
	fmt.Printf("  Saves:        %v (%d saves, %d writers)\n", saveTime, *saves, *writers)
	fmt.Printf("--------------------------------------------------\n")
}
