package languages

import (
	"lodestone/internal/parser"

	"github.com/smacker/go-tree-sitter/cpp"
)

func RegisterCpp(r *parser.Registry) {
	r.Register("cpp", &parser.LanguageSpec{
		Language: cpp.GetLanguage(),
		BlockKinds: map[string]string{
			"function_definition":  "function",
			"class_specifier":      "class",
			"struct_specifier":     "struct",
			"enum_specifier":       "enum",
			"namespace_definition": "module",
		},
		ContainerKinds: map[string]bool{
			"class_specifier":      true,
			"struct_specifier":     true,
			"namespace_definition": true,
		},
		NameKinds: map[string]bool{
			"identifier":           true,
			"type_identifier":      true,
			"field_identifier":     true,
			"namespace_identifier": true,
		},
		QualifierKinds: map[string]bool{"qualified_identifier": true},
		NameDescendKinds: map[string]bool{
			"function_declarator":  true,
			"pointer_declarator":   true,
			"reference_declarator": true,
		},
		CommentKinds: map[string]bool{"comment": true},
		DocStyle:     parser.DocLineComments,
		Extensions:   []string{"cpp", "cc", "cxx", "hpp", "hh"},
	})
}
