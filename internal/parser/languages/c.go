package languages

import (
	"lodestone/internal/parser"

	"github.com/smacker/go-tree-sitter/c"
)

func RegisterC(r *parser.Registry) {
	r.Register("c", &parser.LanguageSpec{
		Language: c.GetLanguage(),
		BlockKinds: map[string]string{
			"function_definition": "function",
			"struct_specifier":    "struct",
			"enum_specifier":      "enum",
			"type_definition":     "type",
		},
		NameKinds: map[string]bool{
			"identifier":       true,
			"type_identifier":  true,
			"field_identifier": true,
		},
		NameDescendKinds: map[string]bool{
			"function_declarator":      true,
			"pointer_declarator":       true,
			"parenthesized_declarator": true,
		},
		CommentKinds: map[string]bool{"comment": true},
		DocStyle:     parser.DocLineComments,
		Extensions:   []string{"c", "h"},
	})
}
