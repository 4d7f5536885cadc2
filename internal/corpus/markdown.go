package corpus

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// mdParser is the shared goldmark instance used for plain-text extraction.
// Parsing is read-only, so a single instance is safe for concurrent use.
var mdParser = goldmark.New(goldmark.WithExtensions(extension.Table))

// markdownText reduces markdown source to plain text by walking the parsed
// AST and collecting text, code, and heading content. Block boundaries become
// blank lines so the chunker's paragraph separator still sees the document
// structure.
func markdownText(src []byte) string {
	doc := mdParser.Parser().Parse(text.NewReader(src))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading, *ast.Paragraph, *ast.ListItem:
			blockBreak(&sb)
			return ast.WalkContinue, nil

		case *ast.Text:
			sb.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteByte('\n')
			}
			return ast.WalkContinue, nil

		case *ast.String:
			sb.Write(node.Value)
			return ast.WalkContinue, nil

		case *ast.FencedCodeBlock, *ast.CodeBlock:
			blockBreak(&sb)
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil

		default:
			return ast.WalkContinue, nil
		}
	})

	return sb.String()
}

// blockBreak inserts a paragraph break unless the builder is empty or
// already ends with one.
func blockBreak(sb *strings.Builder) {
	s := sb.String()
	if s == "" || strings.HasSuffix(s, "\n\n") {
		return
	}
	if strings.HasSuffix(s, "\n") {
		sb.WriteByte('\n')
		return
	}
	sb.WriteString("\n\n")
}
