package languages

import (
	"lodestone/internal/parser"

	"github.com/smacker/go-tree-sitter/golang"
)

func RegisterGo(r *parser.Registry) {
	r.Register("go", &parser.LanguageSpec{
		Language: golang.GetLanguage(),
		BlockKinds: map[string]string{
			"function_declaration": "function",
			"method_declaration":   "method",
			"type_spec":            "type",
		},
		NameKinds: map[string]bool{
			"identifier":       true,
			"field_identifier": true,
			"type_identifier":  true,
		},
		CommentKinds: map[string]bool{"comment": true},
		FuncTokens:   []string{"func "},
		DocStyle:     parser.DocLineComments,
		Extensions:   []string{"go"},
	})
}
