// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/tidwall/jsonc"
)

// Category is one entry of the category taxonomy. Subcategory slugs
// are "parent::child".
type Category struct {
	Slug        string
	Name        string
	Description string
}

type categoryNode struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Categories  map[string]categoryNode `json:"categories"`
}

// ParseTaxonomy reads a JSONC category document:
//
//	{
//	    // Top-level slugs map to a name, description and optional
//	    // nested categories.
//	    "development-tools": {
//	        "name": "Development tools",
//	        "description": "Tools that help develop software.",
//	        "categories": {
//	            "testing": {"name": "Testing", "description": "..."},
//	        },
//	    },
//	}
//
// The result is flattened and sorted by slug.
func ParseTaxonomy(data []byte) ([]Category, error) {
	var root map[string]categoryNode
	if err := json.Unmarshal(jsonc.ToJSON(data), &root); err != nil {
		return nil, fmt.Errorf("parsing category taxonomy: %w", err)
	}
	var categories []Category
	flattenCategories("", root, &categories)
	sort.Slice(categories, func(i, j int) bool { return categories[i].Slug < categories[j].Slug })
	return categories, nil
}

// LoadTaxonomy reads and parses the taxonomy file at path.
func LoadTaxonomy(path string) ([]Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading category taxonomy: %w", err)
	}
	return ParseTaxonomy(data)
}

func flattenCategories(parent string, nodes map[string]categoryNode, out *[]Category) {
	for slug, node := range nodes {
		full := slug
		if parent != "" {
			full = parent + "::" + slug
		}
		name := node.Name
		if name == "" {
			name = slug
		}
		*out = append(*out, Category{Slug: full, Name: name, Description: node.Description})
		flattenCategories(full, node.Categories, out)
	}
}
