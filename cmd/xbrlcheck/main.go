package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"xbrl_engine/pkg/config"
	"xbrl_engine/pkg/core/export"
	"xbrl_engine/pkg/core/filing"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, assuming environment variables are set.")
	}

	dir := flag.String("dir", ".", "filing folder to process")
	configPath := flag.String("config", os.Getenv("XBRL_CONFIG"), "optional YAML config path")
	jsonOut := flag.String("json", "", "write extracted model as JSON to this file")
	csvOut := flag.String("csv", "", "write extracted facts as CSV to this file")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	logger, err := buildLogger(*verbose)
	if err != nil {
		log.Fatalf("Error: cannot initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Error: loading config %s: %v", *configPath, err)
		}
	}

	proc := filing.New(cfg, logger)
	if err := proc.ProcessFolder(*dir); err != nil {
		log.Fatalf("Error: processing %s: %v", *dir, err)
	}

	fmt.Printf("Processed %d documents: %d contexts, %d units, %d facts\n",
		len(proc.Files), len(proc.Model.Contexts), len(proc.Model.Units), len(proc.Model.Facts))
	for _, f := range proc.Files {
		fmt.Printf("  [%s] %s\n", f.Type, f.Path)
	}

	errs, warnings := proc.Validate()
	for _, w := range warnings {
		fmt.Printf("WARN  %s\n", w)
	}
	for _, e := range errs {
		fmt.Printf("ERROR %s\n", e)
	}

	if *jsonOut != "" {
		if err := writeFile(*jsonOut, func(f *os.File) error {
			return export.WriteJSON(f, proc.Model.Processor)
		}); err != nil {
			log.Fatalf("Error: writing JSON export: %v", err)
		}
		fmt.Printf("JSON export written to %s\n", *jsonOut)
	}
	if *csvOut != "" {
		if err := writeFile(*csvOut, func(f *os.File) error {
			return export.WriteCSV(f, proc.Model.Processor)
		}); err != nil {
			log.Fatalf("Error: writing CSV export: %v", err)
		}
		fmt.Printf("CSV export written to %s\n", *csvOut)
	}

	if len(errs) > 0 {
		fmt.Printf("Validation failed with %d errors, %d warnings\n", len(errs), len(warnings))
		os.Exit(1)
	}
	fmt.Printf("Validation passed with %d warnings\n", len(warnings))
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return write(f)
}
