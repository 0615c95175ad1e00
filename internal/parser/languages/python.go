package languages

import (
	"lodestone/internal/parser"

	"github.com/smacker/go-tree-sitter/python"
)

func RegisterPython(r *parser.Registry) {
	r.Register("python", &parser.LanguageSpec{
		Language: python.GetLanguage(),
		BlockKinds: map[string]string{
			"function_definition": "function",
			"class_definition":    "class",
		},
		ContainerKinds: map[string]bool{"class_definition": true},
		NameKinds:      map[string]bool{"identifier": true},
		DecoratorKinds: map[string]bool{"decorator": true},
		CommentKinds:   map[string]bool{"comment": true},
		FuncTokens:     []string{"def ", "lambda"},
		DocStyle:       parser.DocLeadingString,
		Extensions:     []string{"py", "pyi"},
	})
}
