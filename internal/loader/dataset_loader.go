package loader

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"go-eyewear-vision/pkg/models"
)

// DatasetLoader reads product inputs from a catalog CSV export. The file
// must carry a "Product Id" column; every column whose header starts with
// "Image" contributes one candidate URL.
type DatasetLoader struct{}

func NewDatasetLoader() *DatasetLoader {
	return &DatasetLoader{}
}

// LoadProducts parses the CSV at filePath. Rows without any image URL are
// skipped. Only .csv files are supported.
func (l *DatasetLoader) LoadProducts(filePath string) ([]models.ProductInput, error) {
	if !strings.HasSuffix(filePath, ".csv") {
		return nil, fmt.Errorf("unsupported file format: %s (only .csv is supported)", filePath)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}

	productIDCol := -1
	imageCols := []int{}
	for i, name := range header {
		trimmed := strings.TrimSpace(name)
		if trimmed == "Product Id" {
			productIDCol = i
		} else if strings.HasPrefix(trimmed, "Image") {
			imageCols = append(imageCols, i)
		}
	}
	if productIDCol < 0 {
		return nil, fmt.Errorf("dataset is missing the %q column", "Product Id")
	}
	if len(imageCols) == 0 {
		return nil, fmt.Errorf("dataset has no Image columns")
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset rows: %w", err)
	}

	products := make([]models.ProductInput, 0, len(records))
	for _, record := range records {
		if productIDCol >= len(record) {
			continue
		}
		urls := []string{}
		for _, col := range imageCols {
			if col >= len(record) {
				continue
			}
			if url := strings.TrimSpace(record[col]); url != "" {
				urls = append(urls, url)
			}
		}
		if len(urls) == 0 {
			continue
		}
		products = append(products, models.ProductInput{
			ProductID: strings.TrimSpace(record[productIDCol]),
			ImageURLs: urls,
		})
	}

	return products, nil
}
