package languages

import (
	"lodestone/internal/parser"

	"github.com/smacker/go-tree-sitter/rust"
)

func RegisterRust(r *parser.Registry) {
	r.Register("rust", &parser.LanguageSpec{
		Language: rust.GetLanguage(),
		BlockKinds: map[string]string{
			"function_item": "function",
			"struct_item":   "struct",
			"enum_item":     "enum",
			"trait_item":    "trait",
			"impl_item":     "impl",
			"mod_item":      "module",
		},
		ContainerKinds: map[string]bool{
			"impl_item":  true,
			"trait_item": true,
			"mod_item":   true,
		},
		NameKinds: map[string]bool{
			"identifier":      true,
			"type_identifier": true,
		},
		QualifierKinds: map[string]bool{"scoped_type_identifier": true},
		DecoratorKinds: map[string]bool{"attribute_item": true},
		CommentKinds: map[string]bool{
			"line_comment":  true,
			"block_comment": true,
		},
		FuncTokens: []string{"fn "},
		DocStyle:   parser.DocLineComments,
		Extensions: []string{"rs"},
	})
}
