package parser_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lodestone/internal/parser"
	"lodestone/internal/parser/languages"
)

func newParser(t *testing.T) *parser.Parser {
	t.Helper()
	reg := parser.NewRegistry()
	languages.RegisterAll(reg)
	return parser.New(reg)
}

func blockByName(blocks []parser.Block, name string) *parser.Block {
	for i := range blocks {
		if blocks[i].Name == name {
			return &blocks[i]
		}
	}
	return nil
}

func TestParsePythonFunctions(t *testing.T) {
	src := []byte(`def fetch_user(user_id):
    """Load a user from the database."""
    return db.get(user_id)


class UserService:
    """Coordinates user operations."""

    def create(self, name):
        """Create a new user."""
        return User(name)
`)

	p := newParser(t)
	blocks, err := p.Parse(context.Background(), src, "python")
	require.NoError(t, err)

	fn := blockByName(blocks, "fetch_user")
	require.NotNil(t, fn)
	assert.Equal(t, "function", fn.Type)
	assert.Equal(t, 0, fn.StartLine)
	assert.Equal(t, "Load a user from the database.", fn.Docstring)

	cls := blockByName(blocks, "UserService")
	require.NotNil(t, cls)
	assert.Equal(t, "class", cls.Type)
	assert.Equal(t, "Coordinates user operations.", cls.Docstring)

	method := blockByName(blocks, "UserService.create")
	require.NotNil(t, method)
	assert.Equal(t, "function", method.Type)
	assert.Equal(t, "Create a new user.", method.Docstring)
}

func TestParsePythonDecorators(t *testing.T) {
	src := []byte(`@app.route("/users")
@login_required
def list_users():
    return render(users)
`)

	p := newParser(t)
	blocks, err := p.Parse(context.Background(), src, "python")
	require.NoError(t, err)

	fn := blockByName(blocks, "list_users")
	require.NotNil(t, fn)
	require.Len(t, fn.Decorators, 2)
	assert.Contains(t, fn.Decorators[0], "app.route")
	assert.Contains(t, fn.Decorators[1], "login_required")
}

func TestParseGoDeclarations(t *testing.T) {
	src := []byte(`package example

// Server handles incoming requests and
// dispatches them to registered routes.
type Server struct {
	routes map[string]Handler
}

// Handle registers a route.
func (s *Server) Handle(pattern string, h Handler) {
	s.routes[pattern] = h
}

func parseAddr(addr string) (string, int, error) {
	return "", 0, nil
}
`)

	p := newParser(t)
	blocks, err := p.Parse(context.Background(), src, "go")
	require.NoError(t, err)

	srv := blockByName(blocks, "Server")
	require.NotNil(t, srv)
	assert.Equal(t, "type", srv.Type)
	// The comment precedes the enclosing type declaration, not the type spec
	// itself; it still belongs to the type.
	assert.Equal(t, "Server handles incoming requests and\ndispatches them to registered routes.", srv.Docstring)

	handle := blockByName(blocks, "Handle")
	require.NotNil(t, handle)
	assert.Equal(t, "method", handle.Type)
	assert.Equal(t, "Handle registers a route.", handle.Docstring)

	fn := blockByName(blocks, "parseAddr")
	require.NotNil(t, fn)
	assert.Equal(t, "function", fn.Type)
	assert.Empty(t, fn.Docstring)
}

func TestParseRustItems(t *testing.T) {
	src := []byte(`/// A bounded in-memory queue.
pub struct Queue {
    items: Vec<u64>,
}

impl Queue {
    pub fn push(&mut self, item: u64) {
        self.items.push(item);
    }
}

#[derive(Debug)]
pub enum Mode {
    Fast,
    Safe,
}
`)

	p := newParser(t)
	blocks, err := p.Parse(context.Background(), src, "rust")
	require.NoError(t, err)

	q := blockByName(blocks, "Queue")
	require.NotNil(t, q)
	assert.Equal(t, "A bounded in-memory queue.", q.Docstring)

	push := blockByName(blocks, "Queue.push")
	require.NotNil(t, push)
	assert.Equal(t, "function", push.Type)

	mode := blockByName(blocks, "Mode")
	require.NotNil(t, mode)
	require.Len(t, mode.Decorators, 1)
	assert.Contains(t, mode.Decorators[0], "derive(Debug)")
}

func TestParseUnsupportedLanguage(t *testing.T) {
	p := newParser(t)
	_, err := p.Parse(context.Background(), []byte("whatever"), "cobol")
	assert.ErrorIs(t, err, parser.ErrUnsupportedLanguage)
}

func TestParseSyntaxGarbage(t *testing.T) {
	src := []byte(")))) %% this is not python at all {{{{ ][")

	p := newParser(t)
	_, err := p.Parse(context.Background(), src, "python")
	assert.ErrorIs(t, err, parser.ErrParse)
}

func TestParseDropsTinyBlocks(t *testing.T) {
	// A bare type alias is below the minimum indexable size.
	src := []byte(`package example

type A = b

func substantialFunction() {
	doSomethingUseful()
}
`)

	p := newParser(t)
	blocks, err := p.Parse(context.Background(), src, "go")
	require.NoError(t, err)

	assert.Nil(t, blockByName(blocks, "A"))
	assert.NotNil(t, blockByName(blocks, "substantialFunction"))
}

func TestDetectLanguage(t *testing.T) {
	reg := parser.NewRegistry()
	languages.RegisterAll(reg)

	cases := map[string]string{
		"main.py":       "python",
		"server.go":     "go",
		"app.js":        "javascript",
		"service.ts":    "typescript",
		"component.tsx": "tsx",
		"lib.rs":        "rust",
		"Main.java":     "java",
		"util.c":        "c",
		"engine.cpp":    "cpp",
	}
	for path, want := range cases {
		lang, ok := reg.DetectLanguage(path)
		require.True(t, ok, path)
		assert.Equal(t, want, lang, path)
	}

	_, ok := reg.DetectLanguage("README.md")
	assert.False(t, ok)
}
