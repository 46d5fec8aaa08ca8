// Command cleanfeed filters an x.com timeline: it watches the page for
// posts, asks a language-model classifier whether each one matches the
// user's exclusion prompts, and conceals matches behind a dismissible
// overlay. Subcommands manage the session, the prompt set, and the
// classifier credential.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/chromedp/chromedp"
	"github.com/pkg/browser"

	"github.com/ibeckermayer/cleanfeed/internal/app"
	"github.com/ibeckermayer/cleanfeed/internal/auth"
	browseropts "github.com/ibeckermayer/cleanfeed/internal/browser"
	"github.com/ibeckermayer/cleanfeed/internal/config"
	"github.com/ibeckermayer/cleanfeed/internal/history"
	"github.com/ibeckermayer/cleanfeed/internal/logging"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("CLEANFEED_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := logging.New(level)
	slog.SetDefault(logger)

	cmd := "run"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "run":
		err = runDaemon(logger)
	case "login":
		err = runLogin(logger)
	case "logout":
		err = runLogout(logger)
	case "prompts":
		err = runPrompts(logger, os.Args[2:])
	case "key":
		err = runKey(logger, os.Args[2:])
	case "history":
		err = runHistory(os.Args[2:])
	case "open":
		err = runOpen(os.Args[2:])
	case "bot-test":
		err = runBotTest(logger)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: cleanfeed [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run                     Start the timeline filter (default)")
	fmt.Println("  login                   Log in to x.com and store the session")
	fmt.Println("  logout                  Clear the stored x.com session")
	fmt.Println("  prompts list            List exclusion prompts")
	fmt.Println("  prompts add <prompt>    Add an exclusion prompt")
	fmt.Println("  prompts remove <prompt> Remove an exclusion prompt")
	fmt.Println("  key set <sk-...>        Store the classifier API key")
	fmt.Println("  key clear               Remove the classifier API key")
	fmt.Println("  history [n]             Show recent classification outcomes")
	fmt.Println("  open config|data        Open config file / data directory")
	fmt.Println("  bot-test                Audit the browser fingerprint")
}

// loadOrCreateConfig mirrors first-run behavior: missing config gets
// created with defaults, unreadable config falls back to defaults.
func loadOrCreateConfig(logger *slog.Logger) *config.Config {
	cfg, err := config.Load()
	if err == nil {
		return cfg
	}

	cfg = config.Default()
	if os.IsNotExist(err) {
		if saveErr := cfg.Save(); saveErr != nil {
			logger.Warn("could not save default config", "error", saveErr)
		} else if path, pathErr := config.ConfigPath(); pathErr == nil {
			logger.Info("created default config", "path", path)
		}
	} else {
		logger.Warn("could not load config, using defaults", "error", err)
	}
	return cfg
}

func openConfigStore(logger *slog.Logger) (*config.Store, error) {
	cfg := loadOrCreateConfig(logger)
	path, err := config.ConfigPath()
	if err != nil {
		return nil, err
	}
	return config.NewStore(cfg, path, logger), nil
}

func newAuthManager(logger *slog.Logger) (*auth.Manager, error) {
	path, err := auth.DefaultCookieStorePath()
	if err != nil {
		return nil, fmt.Errorf("failed to get cookie store path: %w", err)
	}
	return auth.NewManager(auth.NewCookieStore(path), logger), nil
}

func historyPath() (string, error) {
	dir, err := config.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

func runDaemon(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgStore, err := openConfigStore(logger)
	if err != nil {
		return err
	}

	authManager, err := newAuthManager(logger)
	if err != nil {
		return err
	}

	var hist *history.Store
	if cfgStore.Config().History.Enabled {
		path, err := historyPath()
		if err != nil {
			return err
		}
		hist, err = history.Open(path)
		if err != nil {
			logger.Warn("history disabled, could not open database", "error", err)
		} else {
			defer hist.Close()
		}
	}

	return app.New(cfgStore, authManager, hist, logger).Run(ctx)
}

func runLogin(logger *slog.Logger) error {
	authManager, err := newAuthManager(logger)
	if err != nil {
		return err
	}
	return authManager.Login(context.Background())
}

func runLogout(logger *slog.Logger) error {
	authManager, err := newAuthManager(logger)
	if err != nil {
		return err
	}
	if err := authManager.Logout(); err != nil && !os.IsNotExist(err) {
		return err
	}
	logger.Info("session cleared")
	return nil
}

func runPrompts(logger *slog.Logger, args []string) error {
	store, err := openConfigStore(logger)
	if err != nil {
		return err
	}

	sub := "list"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "list":
		prompts := store.Snapshot().Prompts
		if len(prompts) == 0 {
			fmt.Println("No exclusion prompts configured.")
			return nil
		}
		for i, p := range prompts {
			fmt.Printf("%d. %s\n", i+1, p)
		}
		return nil
	case "add":
		if len(args) < 2 {
			return errors.New("usage: cleanfeed prompts add <prompt>")
		}
		return store.AddPrompt(strings.Join(args[1:], " "))
	case "remove":
		if len(args) < 2 {
			return errors.New("usage: cleanfeed prompts remove <prompt>")
		}
		return store.RemovePrompt(strings.Join(args[1:], " "))
	default:
		return fmt.Errorf("unknown prompts subcommand: %s", sub)
	}
}

func runKey(logger *slog.Logger, args []string) error {
	store, err := openConfigStore(logger)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return errors.New("usage: cleanfeed key set <sk-...> | clear")
	}

	switch args[0] {
	case "set":
		if len(args) < 2 {
			return errors.New("usage: cleanfeed key set <sk-...>")
		}
		if err := store.SetAPIKey(args[1]); err != nil {
			return err
		}
		fmt.Println("API key saved.")
		return nil
	case "clear":
		if err := store.ClearAPIKey(); err != nil {
			return err
		}
		fmt.Println("API key cleared.")
		return nil
	default:
		return fmt.Errorf("unknown key subcommand: %s", args[0])
	}
}

func runHistory(args []string) error {
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		limit = n
	}

	path, err := historyPath()
	if err != nil {
		return err
	}
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Recent(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No classification history.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  post=%s  %s  (%d prompts, %v)\n",
			e.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			e.PostID, e.State, e.PromptCount, e.Duration)
	}
	return nil
}

func runOpen(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: cleanfeed open <config|data>")
	}

	var path string
	var err error
	switch args[0] {
	case "config":
		path, err = config.ConfigPath()
	case "data":
		path, err = config.DataDir()
	default:
		return fmt.Errorf("unknown open target: %s", args[0])
	}
	if err != nil {
		return err
	}

	return browser.OpenFile(path)
}

func runBotTest(logger *slog.Logger) error {
	logger.Info("opening bot.sannysoft.com with stealth browser options")

	opts := browseropts.Options(false) // non-headless so you can see it

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(ctx,
		chromedp.Navigate("https://bot.sannysoft.com"),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}

	fmt.Println("Press Enter to close the browser...")
	fmt.Scanln()
	return nil
}
