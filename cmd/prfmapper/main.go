package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/sgostarter/i/l"

	"prfmapper/pkg/config"
	"prfmapper/pkg/mapping"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "prf.yaml", "Path to the YAML configuration file")
	voxelFile := flag.String("voxels", "", "Array file holding the voxel time courses (overrides config)")
	modelFile := flag.String("models", "", "Array file holding the model time courses (overrides config)")
	outputFile := flag.String("output", "", "Result file to write (overrides config)")
	strategy := flag.String("strategy", "", "Fitting strategy: generic or specialized (overrides config)")
	numWorkers := flag.Int("workers", 0, "Number of voxel partitions fitted in parallel (overrides config)")
	mapDir := flag.String("maps", "", "Directory for parameter map slices, requires output.mapShape (overrides config)")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file and exit")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to create config file: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		log.Fatalf("Failed to apply environment: %v", err)
	}

	// Command line flags take precedence over file and environment
	if *voxelFile != "" {
		cfg.Input.VoxelFile = *voxelFile
	}
	if *modelFile != "" {
		cfg.Input.ModelFile = *modelFile
	}
	if *outputFile != "" {
		cfg.Output.ResultFile = *outputFile
	}
	if *strategy != "" {
		cfg.Fitting.Strategy = *strategy
	}
	if *numWorkers > 0 {
		cfg.Fitting.NumWorkers = *numWorkers
	}
	if *mapDir != "" {
		cfg.Output.MapDir = *mapDir
	}

	logger := l.NewNopLoggerWrapper()
	if cfg.Output.Verbose {
		logger = l.NewConsoleLoggerWrapper()
	}

	fmt.Println("================================")
	fmt.Println("POPULATION RECEPTIVE FIELD MAPPING")
	fmt.Println("================================")
	fmt.Printf("Model grid: %d x %d x %d (%s strategy)\n",
		cfg.Grid.NumX, cfg.Grid.NumY, cfg.Grid.NumSizes, cfg.Fitting.Strategy)

	mapper := mapping.NewMapper(cfg, logger)
	mapper.SetProgressCallback(func(percent, done, total int) {
		fmt.Printf("\rFitting models: %3d%% (%d/%d)", percent, done, total)
		if percent >= 100 {
			fmt.Println()
		}
	})

	if err := mapper.Process(); err != nil {
		log.Fatalf("pRF mapping failed: %v", err)
	}

	res := mapper.Result()
	fitted, sumR2 := 0, 0.0
	for _, r2 := range res.R2 {
		if !math.IsNaN(r2) && !math.IsInf(r2, 0) {
			fitted++
			sumR2 += r2
		}
	}

	fmt.Printf("\nMapping completed successfully in %.2f seconds!\n", mapper.Elapsed().Seconds())
	fmt.Printf("Results saved to: %s\n\n", cfg.Output.ResultFile)

	fmt.Println("Summary:")
	fmt.Println("========")
	fmt.Printf("- Voxels: %d\n", res.NumVoxels())
	fmt.Printf("- Voxels with a defined R²: %d\n", fitted)
	if fitted > 0 {
		fmt.Printf("- Mean R²: %.3f\n", sumR2/float64(fitted))
	}
	fmt.Printf("- Worker partitions: %d\n", mapper.Partitions())

	if cfg.Output.MapDir != "" && len(cfg.Output.MapShape) == 3 {
		fmt.Printf("\nParameter maps saved to: %s\n", cfg.Output.MapDir)
	}
}
