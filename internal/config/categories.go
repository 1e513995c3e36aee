package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/osusume/internal/models"
)

// CategoriesFile is the on-disk shape of the category table: {"categories": [...]}.
type CategoriesFile struct {
	Categories []models.Category `json:"categories" yaml:"categories"`
}

// LoadCategories reads a categories file. Files ending in .json are decoded as JSON,
// anything else as YAML. Ids must be positive and unique.
func LoadCategories(path string) ([]models.Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories file: %w", err)
	}
	var f CategoriesFile
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse categories file: %w", err)
	}

	seen := make(map[int64]struct{}, len(f.Categories))
	for i, c := range f.Categories {
		if c.ID <= 0 {
			return nil, fmt.Errorf("category %d: invalid id %d", i, c.ID)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("category %d: duplicate id %d", i, c.ID)
		}
		seen[c.ID] = struct{}{}
		if f.Categories[i].Keywords == nil {
			f.Categories[i].Keywords = []string{}
		}
	}
	return f.Categories, nil
}
