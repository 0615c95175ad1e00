package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// minBlockLen is the smallest trimmed content a block may have and still be
// worth indexing.
const minBlockLen = 10

var (
	// ErrUnsupportedLanguage means no grammar is registered for the tag.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrParse means the grammar is present but structural extraction
	// failed. Callers degrade to a whole-file block.
	ErrParse = errors.New("parse failed")
)

// Block is one structural unit extracted from a source file.
// Line numbers are 0-based and inclusive on both ends; this convention is
// held across the parser, the store, and search results.
type Block struct {
	Type       string
	Name       string
	Content    string
	StartLine  int
	EndLine    int
	Language   string
	Docstring  string
	Decorators []string
}

// Parser extracts structural blocks from source text using tree-sitter.
// One sitter parser per language is constructed lazily and reused.
type Parser struct {
	registry *Registry

	mu      sync.Mutex
	parsers map[string]*sitter.Parser
}

// New creates a parser backed by the given registry.
func New(r *Registry) *Parser {
	return &Parser{
		registry: r,
		parsers:  make(map[string]*sitter.Parser),
	}
}

// Registry returns the language registry backing this parser.
func (p *Parser) Registry() *Registry { return p.registry }

// Parse extracts the blocks of a source file. It returns
// ErrUnsupportedLanguage when no grammar is registered for lang, and ErrParse
// when the grammar produced nothing usable.
func (p *Parser) Parse(ctx context.Context, src []byte, lang string) ([]Block, error) {
	spec := p.registry.Spec(lang)
	if spec == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}

	sp, err := p.parserFor(lang, spec)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	tree, err := sp.ParseCtx(ctx, nil, src)
	p.mu.Unlock()
	if err != nil {
		// A canceled context is not a grammar failure; callers must not
		// degrade it to the whole-file fallback.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	var blocks []Block
	p.collect(root, src, spec, lang, nil, &blocks)
	blocks = filterBlocks(blocks, spec)

	if len(blocks) == 0 && root.HasError() {
		return nil, fmt.Errorf("%w: %s source has syntax errors and no extractable blocks", ErrParse, lang)
	}
	return blocks, nil
}

// parserFor returns the cached sitter parser for a language, creating it on
// first use.
func (p *Parser) parserFor(lang string, spec *LanguageSpec) (*sitter.Parser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sp, ok := p.parsers[lang]; ok {
		return sp, nil
	}
	if spec.Language == nil {
		return nil, fmt.Errorf("%w: %s has no grammar", ErrUnsupportedLanguage, lang)
	}
	sp := sitter.NewParser()
	sp.SetLanguage(spec.Language)
	p.parsers[lang] = sp
	return sp, nil
}

// collect walks the tree depth-first. Accepted kinds become blocks; anything
// else is skipped but its children are still visited. Container names are
// pushed onto the qualifier stack so nested blocks get dotted names.
func (p *Parser) collect(node *sitter.Node, src []byte, spec *LanguageSpec, lang string, qualifier []string, out *[]Block) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		blockType, accepted := spec.BlockKinds[child.Type()]
		if !accepted {
			p.collect(child, src, spec, lang, qualifier, out)
			continue
		}

		name := extractName(child, src, spec)
		qualified := name
		if name != "" && len(qualifier) > 0 && !strings.ContainsAny(name, ".:") {
			qualified = strings.Join(append(append([]string(nil), qualifier...), name), ".")
		}

		*out = append(*out, Block{
			Type:       blockType,
			Name:       qualified,
			Content:    child.Content(src),
			StartLine:  int(child.StartPoint().Row),
			EndLine:    int(child.EndPoint().Row),
			Language:   lang,
			Docstring:  extractDocstring(child, src, spec),
			Decorators: extractDecorators(child, src, spec),
		})

		childQualifier := qualifier
		if spec.ContainerKinds[child.Type()] && name != "" {
			childQualifier = append(append([]string(nil), qualifier...), name)
		}
		p.collect(child, src, spec, lang, childQualifier, out)
	}
}

// extractName scans a node's immediate children for an identifier-like token.
// Qualified-name kinds win over plain identifiers; descend kinds are looked
// into one level (declarators, type specs).
func extractName(node *sitter.Node, src []byte, spec *LanguageSpec) string {
	var plain string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		kind := child.Type()
		switch {
		case spec.QualifierKinds[kind]:
			return child.Content(src)
		case spec.NameKinds[kind]:
			if plain == "" {
				plain = child.Content(src)
			}
		case spec.NameDescendKinds[kind]:
			if nested := extractName(child, src, spec); nested != "" && plain == "" {
				plain = nested
			}
		}
	}
	return plain
}

// extractDocstring pulls documentation per the language's convention.
func extractDocstring(node *sitter.Node, src []byte, spec *LanguageSpec) string {
	switch spec.DocStyle {
	case DocLeadingString:
		return leadingStringDoc(node, src)
	case DocLineComments:
		return precedingCommentDoc(node, src, spec)
	default:
		return ""
	}
}

// leadingStringDoc takes the string literal that is the first statement of
// the node's body, if any.
func leadingStringDoc(node *sitter.Node, src []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	lit := first.NamedChild(0)
	if lit.Type() != "string" {
		return ""
	}
	return stripStringQuotes(lit.Content(src))
}

// precedingCommentDoc concatenates the contiguous comment block immediately
// above the node, stripping comment markers. A single block comment is
// accepted as well. Kinds like Go's type_spec or C's struct_specifier sit
// inside a wrapper declaration, and the comment precedes the wrapper; when
// the node itself has no comment siblings, walk up through wrappers that
// start on the same row and scan their siblings instead.
func precedingCommentDoc(node *sitter.Node, src []byte, spec *LanguageSpec) string {
	comments := precedingComments(node, spec)
	for len(comments) == 0 {
		parent := node.Parent()
		if parent == nil {
			break
		}
		if _, isBlock := spec.BlockKinds[parent.Type()]; isBlock ||
			parent.StartPoint().Row != node.StartPoint().Row {
			break
		}
		node = parent
		comments = precedingComments(node, spec)
	}
	if len(comments) == 0 {
		return ""
	}

	var lines []string
	for i := len(comments) - 1; i >= 0; i-- {
		text := comments[i].Content(src)
		for _, line := range strings.Split(stripCommentMarkers(text), "\n") {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// precedingComments gathers the node's preceding comment siblings bottom-up,
// stopping at the first gap or non-comment row. Some grammars (tree-sitter
// rust) include the trailing newline in line comments, placing the end point
// one row past the comment text, so an end row of expectRow+1 is contiguous
// too.
func precedingComments(node *sitter.Node, spec *LanguageSpec) []*sitter.Node {
	var comments []*sitter.Node
	expectRow := int(node.StartPoint().Row) - 1
	for prev := node.PrevNamedSibling(); prev != nil; prev = prev.PrevNamedSibling() {
		if !spec.CommentKinds[prev.Type()] {
			break
		}
		if endRow := int(prev.EndPoint().Row); endRow != expectRow && endRow != expectRow+1 {
			break
		}
		comments = append(comments, prev)
		expectRow = int(prev.StartPoint().Row) - 1
	}
	return comments
}

// extractDecorators collects decorator/attribute nodes that are direct
// children of, or immediately precede, the block node, in source order.
func extractDecorators(node *sitter.Node, src []byte, spec *LanguageSpec) []string {
	if len(spec.DecoratorKinds) == 0 {
		return nil
	}

	// Immediately preceding siblings, gathered bottom-up then reversed.
	var preceding []string
	for prev := node.PrevNamedSibling(); prev != nil; prev = prev.PrevNamedSibling() {
		if !spec.DecoratorKinds[prev.Type()] {
			break
		}
		preceding = append(preceding, prev.Content(src))
	}
	for i, j := 0, len(preceding)-1; i < j; i, j = i+1, j-1 {
		preceding[i], preceding[j] = preceding[j], preceding[i]
	}

	decorators := preceding
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch {
		case spec.DecoratorKinds[child.Type()]:
			decorators = append(decorators, child.Content(src))
		case child.Type() == "modifiers":
			// Java keeps annotations inside a modifiers child.
			for j := 0; j < int(child.NamedChildCount()); j++ {
				mod := child.NamedChild(j)
				if spec.DecoratorKinds[mod.Type()] {
					decorators = append(decorators, mod.Content(src))
				}
			}
		}
	}
	return decorators
}

// filterBlocks drops blocks too small to index, nameless class-like blocks,
// and nameless function-like blocks whose content does not actually define a
// function.
func filterBlocks(blocks []Block, spec *LanguageSpec) []Block {
	kept := blocks[:0]
	for _, b := range blocks {
		if len(strings.TrimSpace(b.Content)) < minBlockLen {
			continue
		}
		if b.Name == "" {
			if !isFunctionLike(b.Type) {
				continue
			}
			if !containsFuncToken(b.Content, spec.FuncTokens) {
				continue
			}
		}
		kept = append(kept, b)
	}
	return kept
}

func isFunctionLike(blockType string) bool {
	return blockType == "function" || blockType == "method"
}

func containsFuncToken(content string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(content, tok) {
			return true
		}
	}
	return false
}

// stripStringQuotes removes Python string prefixes and quote characters.
func stripStringQuotes(s string) string {
	s = strings.TrimLeft(s, "rRbBuUfF")
	for _, q := range []string{`"""`, "'''", `"`, "'"} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return strings.TrimSpace(s[len(q) : len(s)-len(q)])
		}
	}
	return strings.TrimSpace(s)
}

// stripCommentMarkers removes line and block comment markers from one
// comment node's text.
func stripCommentMarkers(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "/*") {
		text = strings.TrimPrefix(text, "/*")
		text = strings.TrimSuffix(text, "*/")
		var lines []string
		for _, line := range strings.Split(text, "\n") {
			lines = append(lines, strings.TrimPrefix(strings.TrimSpace(line), "*"))
		}
		return strings.Join(lines, "\n")
	}
	for _, marker := range []string{"///", "//!", "//", "#"} {
		if strings.HasPrefix(text, marker) {
			return strings.TrimSpace(strings.TrimPrefix(text, marker))
		}
	}
	return text
}
