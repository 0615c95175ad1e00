package languages

import (
	"lodestone/internal/parser"

	"github.com/smacker/go-tree-sitter/java"
)

func RegisterJava(r *parser.Registry) {
	r.Register("java", &parser.LanguageSpec{
		Language: java.GetLanguage(),
		BlockKinds: map[string]string{
			"class_declaration":       "class",
			"interface_declaration":   "interface",
			"enum_declaration":        "enum",
			"method_declaration":      "method",
			"constructor_declaration": "method",
		},
		ContainerKinds: map[string]bool{
			"class_declaration":     true,
			"interface_declaration": true,
			"enum_declaration":      true,
		},
		NameKinds: map[string]bool{"identifier": true},
		DecoratorKinds: map[string]bool{
			"annotation":        true,
			"marker_annotation": true,
		},
		// Kind names differ across grammar revisions; accept all of them.
		CommentKinds: map[string]bool{
			"comment":       true,
			"line_comment":  true,
			"block_comment": true,
		},
		DocStyle:   parser.DocLineComments,
		Extensions: []string{"java"},
	})
}
