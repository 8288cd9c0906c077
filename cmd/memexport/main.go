package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"shapeexport/internal/browser"
	"shapeexport/internal/checkpoint"
	"shapeexport/internal/config"
	"shapeexport/internal/export"
	"shapeexport/internal/extract"
	"shapeexport/internal/logging"
	"shapeexport/internal/models"
	"shapeexport/internal/writer"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err == nil {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()

	output := flag.String("output", cfg.OutputDir, "output directory for export artifacts")
	debug := flag.Bool("debug", cfg.Debug, "persist page snapshots when a listing is not recognized")
	pages := flag.Int("pages", cfg.PageLimit, "stop after N pages per shape (0 = all)")
	slow := flag.Bool("slow", cfg.SlowMode, "double all settle delays for slow connections")
	engine := flag.String("engine", cfg.Engine, "browser engine: chromium, chrome or edge")
	browserPath := flag.String("browser-path", cfg.BrowserPath, "explicit browser executable path")
	loginTimeout := flag.Duration("login-timeout", cfg.LoginTimeout, "how long to wait for login")
	all := flag.Bool("all", false, "export every shape discovered on the dashboard")
	shapesFile := flag.String("shapes-file", "", "YAML file listing {name, url} shapes to export")
	flag.Parse()

	cfg.OutputDir = *output
	cfg.Debug = *debug
	cfg.PageLimit = *pages
	cfg.SlowMode = *slow
	cfg.Engine = *engine
	cfg.BrowserPath = *browserPath
	cfg.LoginTimeout = *loginTimeout

	log.Println("🚀 Starting shape memory export...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *all, *shapesFile, flag.Args()); err != nil {
		log.Printf("❌ Export failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, all bool, shapesFile string, urls []string) error {
	artifacts, err := writer.New(cfg.OutputDir)
	if err != nil {
		return err
	}
	store, err := checkpoint.NewStore(filepath.Join(cfg.OutputDir, ".checkpoints"))
	if err != nil {
		return err
	}

	session, err := browser.NewSession(ctx, browser.Options{
		Engine:      cfg.Engine,
		ExecPath:    cfg.BrowserPath,
		SettleDelay: cfg.EffectiveSettleDelay(),
	})
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.TriggerLogin(ctx, cfg.BaseURL); err != nil {
		return err
	}
	if err := session.WaitForLogin(ctx, cfg.LoginTimeout); err != nil {
		return fmt.Errorf("%w (log in within the browser window, or raise -login-timeout)", err)
	}

	targets, err := resolveTargets(ctx, session, cfg, all, shapesFile, urls)
	if err != nil {
		return err
	}
	log.Printf("📋 Exporting %d shape(s)", len(targets))

	extractor := extract.NewExtractor()
	engineCfg := export.Config{
		CheckpointInterval: cfg.CheckpointInterval,
		MaxRetries:         cfg.MaxRetries,
		RetryBackoff:       cfg.RetryBackoff,
		PageLimit:          cfg.PageLimit,
	}

	total := 0
	for _, target := range targets {
		shapeLog := logging.WithShape(target.ID, target.Name)
		shapeLog.Info("export starting", "url", target.URL)

		if err := session.OpenMemories(ctx, target.URL); err != nil {
			dumpDebug(ctx, session, artifacts, target.Name)
			log.Printf("⚠️  %s: %v (check the debug snapshot, or retry with -slow)", target.Name, err)
			continue
		}
		if !session.LooksLikeMemoryListing(ctx) {
			dumpDebug(ctx, session, artifacts, target.Name)
			log.Printf("⚠️  %s: %v", target.Name, export.ErrSessionInvalid)
			continue
		}
		if cfg.Debug {
			// keep a snapshot of the recognized listing too
			dumpDebug(ctx, session, artifacts, target.Name)
		}

		nav := buildNavigator(ctx, session, cfg, target.URL)
		eng := export.NewEngine(nav, extractor, store, nil, engineCfg)

		result, err := eng.Export(ctx, target.Name)
		if err != nil {
			if errors.Is(err, export.ErrSessionInvalid) {
				dumpDebug(ctx, session, artifacts, target.Name)
				return fmt.Errorf("%s: %w (re-login and re-run to resume from the checkpoint)", target.Name, err)
			}
			log.Printf("⚠️  %s: %v", target.Name, err)
			continue
		}

		jsonPath, txtPath, err := artifacts.Write(result)
		if err != nil {
			return fmt.Errorf("%s: %w", target.Name, err)
		}
		log.Printf("💾 %s: %d memories -> %s, %s", target.Name, result.Count, jsonPath, txtPath)
		total += result.Count
	}

	log.Printf("✅ Done! Exported %d total memories to %s", total, cfg.OutputDir)
	return nil
}

// buildNavigator prefers the direct endpoint when one is configured; UI
// pagination is the fallback.
func buildNavigator(ctx context.Context, session *browser.Session, cfg *config.Config, listingURL string) export.Navigator {
	if cfg.APIEndpoint != "" {
		client := export.NewAPIClient("", cfg.APIRate)
		if cookies, err := session.Cookies(ctx); err == nil {
			client.SetCookies(cookies)
		} else {
			log.Printf("⚠️  Could not export session cookies, direct fetch may be unauthenticated: %v", err)
		}
		return export.NewAPINavigator(client, cfg.APIEndpoint)
	}
	return export.NewUINavigator(session, export.UIOptions{
		SettleDelay: cfg.EffectiveSettleDelay(),
		JumpURL: func(page int) string {
			sep := "?"
			if strings.Contains(listingURL, "?") {
				sep = "&"
			}
			return fmt.Sprintf("%s%spage=%d", listingURL, sep, page)
		},
	})
}

func resolveTargets(ctx context.Context, session *browser.Session, cfg *config.Config, all bool, shapesFile string, urls []string) ([]models.ShapeTarget, error) {
	if shapesFile != "" {
		return config.LoadShapes(shapesFile)
	}
	if len(urls) > 0 {
		targets := make([]models.ShapeTarget, 0, len(urls))
		for _, u := range urls {
			targets = append(targets, models.ShapeTarget{
				ID:   shapeIDFromURL(u),
				Name: shapeIDFromURL(u),
				URL:  u,
			})
		}
		return targets, nil
	}

	shapes, err := session.DiscoverShapes(ctx, cfg.BaseURL+"/dashboard", cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if len(shapes) == 0 {
		return nil, fmt.Errorf("no shapes found on the dashboard; pass a listing URL directly")
	}
	if !all && len(shapes) > 1 {
		names := make([]string, len(shapes))
		for i, s := range shapes {
			names[i] = s.Name
		}
		return nil, fmt.Errorf("found %d shapes (%s); pass -all or a listing URL", len(shapes), strings.Join(names, ", "))
	}
	return shapes, nil
}

func shapeIDFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Path == "" {
		return "shape"
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" && segments[i] != "memories" && segments[i] != "memory" {
			return segments[i]
		}
	}
	return "shape"
}

func dumpDebug(ctx context.Context, session *browser.Session, artifacts *writer.Writer, shapeName string) {
	html, err := session.HTML(ctx)
	if err != nil {
		return
	}
	if path, err := artifacts.WriteDebug(shapeName, html); err == nil {
		log.Printf("🔍 Saved page snapshot for debugging: %s", path)
	}
}
