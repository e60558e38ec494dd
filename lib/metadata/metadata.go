// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metadata validates the descriptive fields of a crate
// manifest before they are persisted: required fields, the license
// expression, URL shape, and keyword and category counts.
package metadata

import (
	"net/url"
	"strings"

	"github.com/github/go-spdx/v2/spdxexp"

	"github.com/bureau-foundation/registry/lib/apperr"
	"github.com/bureau-foundation/registry/lib/archive"
)

// NonStandardLicense is stored as the license of a crate that ships a
// license file but no SPDX expression.
const NonStandardLicense = "non-standard"

// Keyword and category ceilings.
const (
	MaxKeywords      = 5
	MaxKeywordLength = 20
	MaxCategories    = 5
)

const licenseError = "unknown or invalid license expression; see http://opensource.org/licenses for options, and http://spdx.org/licenses/ for their identifiers"

// Validated holds the manifest fields in the form they are stored.
type Validated struct {
	Description   string
	License       string
	Homepage      string
	Documentation string
	Repository    string

	// Keywords are lowercased and deduplicated in their original
	// order.
	Keywords []string

	// Categories are the declared slugs. Whether each exists in the
	// taxonomy is decided when they are persisted.
	Categories []string
}

// Validate checks pkg and returns the fields to persist. The first
// failing rule is reported as an apperr.Input error.
func Validate(pkg *archive.Package) (*Validated, error) {
	var missing []string
	if pkg.Description == "" {
		missing = append(missing, "description")
	}
	if pkg.License == "" && pkg.LicenseFile == "" {
		missing = append(missing, "license")
	}
	if len(missing) > 0 {
		return nil, apperr.Inputf("missing or empty metadata fields: %s. Please see https://doc.rust-lang.org/cargo/reference/manifest.html for how to upload metadata", strings.Join(missing, ", "))
	}

	license := pkg.License
	if license != "" {
		if !ValidLicense(license) {
			return nil, apperr.Inputf("%s", licenseError)
		}
	} else {
		license = NonStandardLicense
	}

	for _, field := range []struct{ name, value string }{
		{"homepage", pkg.Homepage},
		{"documentation", pkg.Documentation},
		{"repository", pkg.Repository},
	} {
		if err := validateURL(field.name, field.value); err != nil {
			return nil, err
		}
	}

	keywords, err := validateKeywords(pkg.Keywords)
	if err != nil {
		return nil, err
	}

	if len(pkg.Categories) > MaxCategories {
		return nil, apperr.Inputf("expected at most %d categories per crate", MaxCategories)
	}

	return &Validated{
		Description:   pkg.Description,
		License:       license,
		Homepage:      pkg.Homepage,
		Documentation: pkg.Documentation,
		Repository:    pkg.Repository,
		Keywords:      keywords,
		Categories:    append([]string(nil), pkg.Categories...),
	}, nil
}

// ValidLicense reports whether expression is a valid SPDX license
// expression. The legacy "/" separator is read as OR.
func ValidLicense(expression string) bool {
	normalized := strings.ReplaceAll(expression, "/", " OR ")
	valid, _ := spdxexp.ValidateLicenses([]string{normalized})
	return valid
}

// validateURL requires an explicit http:// or https:// prefix before
// parsing. URL parsers accept relative and scheme-less input, so a
// successful parse alone would admit "https:/example.com".
func validateURL(field, value string) error {
	if value == "" {
		return nil
	}
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		return apperr.Inputf("URL for field `%s` must begin with http:// or https:// (url: %s)", field, value)
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Host == "" {
		return apperr.Inputf("`%s` is not a valid url: `%s`", field, value)
	}
	return nil
}

func validateKeywords(declared []string) ([]string, error) {
	if len(declared) > MaxKeywords {
		return nil, apperr.Inputf("expected at most %d keywords per crate", MaxKeywords)
	}
	keywords := make([]string, 0, len(declared))
	seen := make(map[string]bool, len(declared))
	for _, keyword := range declared {
		if len(keyword) > MaxKeywordLength {
			return nil, apperr.Inputf("%q is an invalid keyword (keywords must have less than %d characters)", keyword, MaxKeywordLength)
		}
		if !ValidKeyword(keyword) {
			return nil, apperr.Inputf("%q is an invalid keyword", keyword)
		}
		lower := strings.ToLower(keyword)
		if !seen[lower] {
			seen[lower] = true
			keywords = append(keywords, lower)
		}
	}
	return keywords, nil
}

// ValidKeyword reports whether keyword matches the keyword grammar: an
// ASCII alphanumeric first character followed by ASCII alphanumerics,
// '_', '-' or '+'.
func ValidKeyword(keyword string) bool {
	if keyword == "" {
		return false
	}
	for i := 0; i < len(keyword); i++ {
		c := keyword[i]
		alphanumeric := ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
		if alphanumeric {
			continue
		}
		if i == 0 || (c != '_' && c != '-' && c != '+') {
			return false
		}
	}
	return true
}
