package languages

import (
	"lodestone/internal/parser"

	"github.com/smacker/go-tree-sitter/javascript"
)

func RegisterJavaScript(r *parser.Registry) {
	r.Register("javascript", &parser.LanguageSpec{
		Language: javascript.GetLanguage(),
		BlockKinds: map[string]string{
			"function_declaration":           "function",
			"generator_function_declaration": "function",
			"class_declaration":              "class",
			"method_definition":              "method",
		},
		ContainerKinds: map[string]bool{"class_declaration": true},
		NameKinds: map[string]bool{
			"identifier":          true,
			"property_identifier": true,
		},
		CommentKinds: map[string]bool{"comment": true},
		FuncTokens:   []string{"function", "=>"},
		DocStyle:     parser.DocLineComments,
		Extensions:   []string{"js", "jsx", "mjs"},
	})
}
