package languages

import (
	"lodestone/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

func RegisterTypeScript(r *parser.Registry) {
	r.Register("typescript", typescriptSpec(typescript.GetLanguage(), []string{"ts"}))
	// TSX is a separate grammar sharing the same structural vocabulary.
	r.Register("tsx", typescriptSpec(tsx.GetLanguage(), []string{"tsx"}))
}

func typescriptSpec(lang *sitter.Language, exts []string) *parser.LanguageSpec {
	return &parser.LanguageSpec{
		Language: lang,
		BlockKinds: map[string]string{
			"function_declaration":           "function",
			"generator_function_declaration": "function",
			"class_declaration":              "class",
			"abstract_class_declaration":     "class",
			"method_definition":              "method",
			"interface_declaration":          "interface",
			"enum_declaration":               "enum",
			"type_alias_declaration":         "type",
		},
		ContainerKinds: map[string]bool{
			"class_declaration":          true,
			"abstract_class_declaration": true,
		},
		NameKinds: map[string]bool{
			"identifier":          true,
			"type_identifier":     true,
			"property_identifier": true,
		},
		DecoratorKinds: map[string]bool{"decorator": true},
		CommentKinds:   map[string]bool{"comment": true},
		FuncTokens:     []string{"function", "=>"},
		DocStyle:       parser.DocLineComments,
		Extensions:     exts,
	}
}
