package main

import (
	"flag"
	"log"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"librarian/internal/app"
	"librarian/internal/config"
	"librarian/internal/logger"
	"librarian/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var topK int
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/librarian/config.yaml if not provided)")
	flag.IntVar(&topK, "k", 0, "Number of retrieval candidates (1-10; overrides config)")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if topK <= 0 {
		topK = cfg.TopK
	}

	logPath := cfg.LogPath
	if logPath == "" {
		logPath = "librarian.log"
	}
	zl := logger.NewFile(logPath)
	defer zl.Sync()

	svc, err := app.Build(cfg, zl)
	if err != nil {
		log.Fatalf("assembly failed: %v", err)
	}
	defer svc.Close()

	m := tui.New(svc, topK)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Fatal(err)
	}
}
