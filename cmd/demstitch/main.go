package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/demtools/go-demstitch"
)

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func run() error {
	database := flag.String("database", envString("DEMSTITCH_DATABASE", ""), "tile database directory")
	west := flag.Float64("west", -180, "west longitude of the target rectangle")
	north := flag.Float64("north", 90, "north latitude of the target rectangle")
	east := flag.Float64("east", 180, "east longitude of the target rectangle")
	south := flag.Float64("south", -90, "south latitude of the target rectangle")
	scale := flag.Float64("scale", 1, "output resolution as a fraction of source resolution, in (0, 1]")
	chunkMB := flag.Int("chunk-mb", envInt("DEMSTITCH_CHUNK_MB", 200), "nominal chunk size in MB for chunked assembly")
	memoryFraction := flag.Float64("memory-fraction", envFloat("DEMSTITCH_MEMORY_FRACTION", 0.5), "fraction of available memory the in-memory strategy may use")
	force := flag.String("force", envString("DEMSTITCH_FORCE", ""), "force assembly strategy: memory or chunked")
	memoryLimitMB := flag.Int("memory-limit-mb", envInt("DEMSTITCH_MEMORY_LIMIT_MB", 0), "artificial cap on available memory in MB, 0 for none")
	tempDir := flag.String("temp", envString("DEMSTITCH_TEMP", os.TempDir()), "directory for spooled chunks and output rasters")
	logLevel := flag.String("log-level", envString("DEMSTITCH_LOG_LEVEL", "info"), "log level: debug, info, warn, or error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", *logLevel)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *database == "" {
		return fmt.Errorf("no tile database given, use -database or DEMSTITCH_DATABASE")
	}

	forced := demstitch.StrategyAuto
	switch *force {
	case "":
	case "memory":
		forced = demstitch.StrategyInMemory
	case "chunked":
		forced = demstitch.StrategyChunked
	default:
		return fmt.Errorf("unknown strategy %q, expected memory or chunked", *force)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := demstitch.NewCatalog(*database, demstitch.WithCatalogLogger(logger))
	if err != nil {
		return err
	}
	logger.Info("catalog loaded", "dir", *database, "tiles", catalog.Len())

	assembler, err := demstitch.NewAssembler(catalog,
		demstitch.WithLogger(logger),
		demstitch.WithChunkSizeMB(*chunkMB),
		demstitch.WithMemoryFraction(*memoryFraction),
		demstitch.WithForcedStrategy(forced),
		demstitch.WithMemoryLimit(uint64(*memoryLimitMB)<<20),
		demstitch.WithTempDir(*tempDir),
		demstitch.WithProgressFunc(func(fraction float64) {
			fmt.Fprintf(os.Stderr, "\rassembling: %3.0f%%", fraction*100)
		}),
	)
	if err != nil {
		return err
	}
	defer assembler.Close()

	bounds := demstitch.Bounds{West: *west, North: *north, East: *east, South: *south}
	result, err := assembler.Assemble(ctx, bounds, *scale)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", result.Path)
	logger.Info("assembly complete",
		"path", result.Path,
		"width", result.Width, "height", result.Height,
		"coverage", result.Coverage,
		"strategy", result.Strategy.String(),
		"chunks", result.Chunks)
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
