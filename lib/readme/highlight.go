// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package readme

import (
	"bytes"
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// codeBlockRenderer replaces goldmark's fenced code output with chroma
// markup. Blocks without a known language render as plain <pre><code>.
type codeBlockRenderer struct{}

func (r *codeBlockRenderer) RegisterFuncs(registerer renderer.NodeRendererFuncRegisterer) {
	registerer.Register(ast.KindFencedCodeBlock, r.renderFencedCodeBlock)
}

var formatter = chromahtml.New(chromahtml.WithClasses(true))

func (r *codeBlockRenderer) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	block := node.(*ast.FencedCodeBlock)

	var code bytes.Buffer
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		code.Write(segment.Value(source))
	}

	language := infoLanguage(string(block.Language(source)))
	lexer := lexers.Get(language)
	if language == "" || lexer == nil {
		w.WriteString("<pre><code")
		if language != "" {
			w.WriteString(` class="language-`)
			w.WriteString(html.EscapeString(language))
			w.WriteString(`"`)
		}
		w.WriteString(">")
		w.WriteString(html.EscapeString(code.String()))
		w.WriteString("</code></pre>\n")
		return ast.WalkSkipChildren, nil
	}

	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, code.String())
	if err != nil {
		return ast.WalkStop, err
	}
	if err := formatter.Format(w, styles.Get("github"), iterator); err != nil {
		return ast.WalkStop, err
	}
	return ast.WalkSkipChildren, nil
}

// infoLanguage extracts the language from a fence info string. Rust
// doc conventions like "rust,ignore" or "no_run" are honoured.
func infoLanguage(info string) string {
	fields := strings.FieldsFunc(info, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) == 0 {
		return ""
	}
	first := fields[0]
	switch first {
	case "ignore", "no_run", "should_panic", "compile_fail", "edition2015", "edition2018", "edition2021":
		return "rust"
	}
	return strings.ToLower(first)
}
