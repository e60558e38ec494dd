// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package readme renders a published crate's readme to HTML for the
// crate page. Markdown follows GitHub's dialect, fenced code blocks are
// highlighted with class-based chroma markup and relative links are
// resolved against the crate's repository. Raw HTML in the source is
// dropped.
package readme

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Options carries the context needed to resolve relative links.
type Options struct {
	// BaseURL is the crate's repository URL from its manifest. Empty
	// leaves relative links untouched.
	BaseURL string

	// PathInVCS is the package's directory inside the repository, from
	// .cargo_vcs_info.json. Empty for a package at the repository root.
	PathInVCS string
}

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Footnote,
			),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
			goldmark.WithRendererOptions(
				renderer.WithNodeRenderers(util.Prioritized(&codeBlockRenderer{}, 100)),
			),
		)
	})
	return markdownInstance
}

// Render converts markdown to HTML.
func Render(markdown string, options Options) (string, error) {
	source := []byte(markdown)
	md := getMarkdown()
	document := md.Parser().Parse(text.NewReader(source))

	base, err := repositoryBase(options)
	if err != nil {
		return "", err
	}
	err = ast.Walk(document, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Link:
			n.Destination = base.resolve(n.Destination, "blob")
			n.SetAttributeString("rel", []byte("nofollow noopener noreferrer"))
		case *ast.Image:
			n.Destination = base.resolve(n.Destination, "raw")
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("readme: rewriting links: %w", err)
	}

	var output bytes.Buffer
	if err := md.Renderer().Render(&output, source, document); err != nil {
		return "", fmt.Errorf("readme: rendering: %w", err)
	}
	return output.String(), nil
}

// RenderFile renders a readme according to its file name. Markdown
// files (and files without an extension) go through Render; anything
// else is shown preformatted.
func RenderFile(name, contents string, options Options) (string, error) {
	switch strings.ToLower(path.Ext(name)) {
	case "", ".md", ".markdown", ".mdown", ".mkdn", ".mkd":
		return Render(contents, options)
	}
	var output bytes.Buffer
	output.WriteString("<pre>")
	output.WriteString(html.EscapeString(contents))
	output.WriteString("</pre>\n")
	return output.String(), nil
}

type linkBase struct {
	repo *url.URL
	dir  string
}

func repositoryBase(options Options) (linkBase, error) {
	if options.BaseURL == "" {
		return linkBase{}, nil
	}
	repo, err := url.Parse(strings.TrimSuffix(strings.TrimRight(options.BaseURL, "/"), ".git"))
	if err != nil {
		return linkBase{}, fmt.Errorf("readme: invalid repository URL %q: %w", options.BaseURL, err)
	}
	if repo.Scheme != "http" && repo.Scheme != "https" {
		return linkBase{}, nil
	}
	return linkBase{repo: repo, dir: strings.Trim(options.PathInVCS, "/")}, nil
}

// resolve maps a relative destination to the repository browser. kind
// is "blob" for pages and "raw" for images. Absolute URLs, fragments
// and protocol-relative links pass through.
func (base linkBase) resolve(destination []byte, kind string) []byte {
	if base.repo == nil || len(destination) == 0 {
		return destination
	}
	target, err := url.Parse(string(destination))
	if err != nil || target.IsAbs() || target.Host != "" {
		return destination
	}
	if target.Path == "" {
		return destination
	}

	var resolved string
	if strings.HasPrefix(target.Path, "/") {
		resolved = path.Clean(target.Path)
	} else {
		resolved = path.Clean(path.Join("/", base.dir, target.Path))
	}
	out := *base.repo
	out.Path = path.Join(base.repo.Path, kind, "HEAD") + resolved
	out.RawQuery = target.RawQuery
	out.Fragment = target.Fragment
	return []byte(out.String())
}

