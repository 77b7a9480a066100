package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"librarian/internal/app"
	"librarian/internal/config"
	"librarian/internal/logger"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var topK int
	var asJSON bool
	var seedOnly bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional)")
	flag.IntVar(&topK, "k", 0, "Number of retrieval candidates (1-10; overrides config)")
	flag.BoolVar(&asJSON, "json", false, "Print the full answer as JSON")
	flag.BoolVar(&seedOnly, "seed-only", false, "Seed the vector store and exit")
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

	zl := logger.NewConsole()
	defer zl.Sync()

	svc, err := app.Build(cfg, zl)
	if err != nil {
		log.Fatalf("assembly failed: %v", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if seedOnly {
		seeded, err := svc.SeedIfEmpty(ctx)
		if err != nil {
			log.Fatalf("seeding failed: %v", err)
		}
		if seeded {
			fmt.Println("Vector store seeded.")
		} else {
			fmt.Println("Vector store already populated.")
		}
		return
	}

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: librarian-ask [flags] <question>")
		os.Exit(2)
	}

	answer, err := svc.Answer(ctx, query, topK)
	if err != nil {
		if answer == nil {
			log.Fatalf("request failed: %v", err)
		}
		// Partial answer from a failed follow-up turn; print it, note the error.
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	if asJSON {
		out, err := json.MarshalIndent(answer, "", "  ")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(string(out))
		return
	}

	fmt.Println(answer.Assistant)
	if answer.UsedTool != "" && answer.ToolResult != "" {
		fmt.Println()
		fmt.Println("Full summary:")
		fmt.Println(answer.ToolResult)
	}
}
