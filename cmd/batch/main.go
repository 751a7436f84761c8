package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/sirupsen/logrus"

	"go-eyewear-vision/internal/config"
	"go-eyewear-vision/internal/container"
	"go-eyewear-vision/internal/loader"
	"go-eyewear-vision/pkg/models"
)

// Batch driver: reads a catalog CSV, runs the measurement pipeline over
// each product sequentially, and writes the measurements as a JSON array.
func main() {
	inputPath := flag.String("input", "", "path to the catalog CSV")
	outputPath := flag.String("output", "measurements.json", "path to write the JSON results")
	limit := flag.Int("limit", 0, "process at most this many products (0 = all)")
	flag.Parse()

	if *inputPath == "" {
		log.Fatal("-input is required")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	c, err := container.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	products, err := loader.NewDatasetLoader().LoadProducts(*inputPath)
	if err != nil {
		log.Fatalf("Failed to load dataset: %v", err)
	}
	if *limit > 0 && len(products) > *limit {
		products = products[:*limit]
	}

	logrus.WithFields(logrus.Fields{
		"products": len(products),
		"input":    *inputPath,
	}).Info("Starting batch processing")

	processor := c.Processor()
	results := make([]*models.ProductMeasurement, 0, len(products))
	for i, product := range products {
		measurement := processor.ProcessProduct(ctx, product)
		results = append(results, measurement)

		logrus.WithFields(logrus.Fields{
			"progress":   i + 1,
			"total":      len(products),
			"product_id": product.ProductID,
			"status":     measurement.ProcessingStatus,
			"time_ms":    measurement.ProcessingTimeMs,
		}).Info("Product processed")
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode results: %v", err)
	}
	if err := os.WriteFile(*outputPath, out, 0o644); err != nil {
		log.Fatalf("Failed to write results: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"output":   *outputPath,
		"products": len(results),
	}).Info("Batch complete")
}
