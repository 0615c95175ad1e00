package parser

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// DocStyle selects how a language attaches documentation to a block.
type DocStyle int

const (
	// DocNone means the language has no docstring convention we extract.
	DocNone DocStyle = iota
	// DocLeadingString takes a string literal that is the first statement
	// of the block body (Python).
	DocLeadingString
	// DocLineComments concatenates the contiguous comment block immediately
	// preceding the node.
	DocLineComments
)

// LanguageSpec is the capability table for one language: which tree-sitter
// node kinds become blocks and how names, docstrings, and decorators are
// derived from them. Adding a language is a data addition, not a traversal
// change.
type LanguageSpec struct {
	Language *sitter.Language

	// BlockKinds maps accepted node kinds to the block type vocabulary
	// stored in the index (function, class, struct, ...).
	BlockKinds map[string]string

	// ContainerKinds are block kinds whose name qualifies nested blocks
	// (Class.method).
	ContainerKinds map[string]bool

	// NameKinds are child node kinds accepted as a block name, in scan order.
	NameKinds map[string]bool

	// QualifierKinds are child node kinds carrying an already-qualified name
	// (attribute/member access, scoped identifiers). Preferred over NameKinds.
	QualifierKinds map[string]bool

	// NameDescendKinds are child kinds to descend through when scanning for
	// a name (declarators in C, type specs in Go).
	NameDescendKinds map[string]bool

	// DecoratorKinds are node kinds treated as decorators/attributes when
	// they are direct children of, or immediately precede, a block node.
	DecoratorKinds map[string]bool

	// CommentKinds are the comment node kinds of this grammar.
	CommentKinds map[string]bool

	// FuncTokens are substrings that prove a nameless block really defines
	// a function in this language.
	FuncTokens []string

	DocStyle   DocStyle
	Extensions []string
}

// Registry maps language tags and file extensions to language specs.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*LanguageSpec // language tag → spec
	exts  map[string]string        // extension (without dot) → language tag
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs: make(map[string]*LanguageSpec),
		exts:  make(map[string]string),
	}
}

// Register adds a language spec under the given tag.
func (r *Registry) Register(lang string, spec *LanguageSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[lang] = spec
	for _, ext := range spec.Extensions {
		r.exts[ext] = lang
	}
}

// Spec returns the spec for a language tag, or nil.
func (r *Registry) Spec(lang string) *LanguageSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.specs[lang]
}

// DetectLanguage maps a file path to its language tag by extension.
// Unknown extensions return ok=false; that is routing, not an error.
func (r *Registry) DetectLanguage(path string) (lang string, ok bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok = r.exts[ext]
	return lang, ok
}

// Extensions returns the set of all registered file extensions (without dot).
func (r *Registry) Extensions() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make(map[string]bool, len(r.exts))
	for ext := range r.exts {
		exts[ext] = true
	}
	return exts
}
