// Package languages registers the tree-sitter grammars and per-language
// extraction rules known to the parser.
package languages

import "lodestone/internal/parser"

// RegisterAll registers every supported language on the registry.
func RegisterAll(r *parser.Registry) {
	RegisterPython(r)
	RegisterGo(r)
	RegisterJavaScript(r)
	RegisterTypeScript(r)
	RegisterRust(r)
	RegisterJava(r)
	RegisterC(r)
	RegisterCpp(r)
}
