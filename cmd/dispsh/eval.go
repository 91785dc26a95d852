package main

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/podhmo/go-activex"
	"gopkg.in/yaml.v3"
)

const helpText = `expressions:
  Name                 read a member of the current object
  a.b.c                read nested members
  items[0], obj["k"]   indexed and keyed reads
  Add(1, 2)            call a method
  Name = "value"       assign a member (also a.b = 1, items[0] = true)
  _                    the current object itself
reserved members: __value, __id, __type, valueOf(), toString()
commands:
  :new <class|file.yaml> [{async: false, type: true, activate: false}]
  :id  :value  :type  :members  :classes  :help  :quit
`

var errNoObject = errors.New("no object, open one with :new")

// session holds the current root object of the shell.
type session struct {
	root     *activex.Proxy
	registry *activex.Registry
	options  []activex.Option
	logger   *slog.Logger
	out      io.Writer
}

func newSession(out io.Writer, logger *slog.Logger, registry *activex.Registry, options ...activex.Option) *session {
	return &session{out: out, logger: logger, registry: registry, options: options}
}

// open replaces the current object. source is a class identifier or the path of
// a YAML document exposed as a native object.
func (s *session) open(source string, bag map[string]any) error {
	src, err := loadSource(source)
	if err != nil {
		return err
	}
	options := append(slices.Clone(s.options), activex.WithRegistry(s.registry), activex.WithLogger(s.logger))
	if bag != nil {
		options = append(options, activex.WithOptions(bag))
	}
	p, err := activex.New(src, options...)
	if err != nil {
		return err
	}
	s.close()
	s.root = p
	return nil
}

func (s *session) close() {
	if s.root != nil {
		s.root.Release()
		s.root = nil
	}
}

func loadSource(source string) (any, error) {
	switch filepath.Ext(source) {
	case ".yaml", ".yml":
	default:
		return source, nil
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode source %s: %w", source, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// run handles one input line. It reports whether the shell should exit.
func (s *session) run(line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if strings.HasPrefix(line, ":") {
		return s.command(line)
	}
	v, err := s.eval(line)
	if err != nil {
		return false, err
	}
	fmt.Fprintln(s.out, format(v))
	return false, nil
}

func (s *session) command(line string) (bool, error) {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case ":quit", ":q":
		return true, nil
	case ":help":
		fmt.Fprint(s.out, helpText)
		return false, nil
	case ":classes":
		for _, c := range s.registry.Classes() {
			fmt.Fprintln(s.out, c)
		}
		return false, nil
	case ":new":
		source, opts, _ := strings.Cut(rest, " ")
		if source == "" {
			return false, errors.New("usage: :new <class|file.yaml> [yaml options]")
		}
		var bag map[string]any
		if opts = strings.TrimSpace(opts); opts != "" {
			if err := yaml.Unmarshal([]byte(opts), &bag); err != nil {
				return false, fmt.Errorf("decode options: %w", err)
			}
		}
		if err := s.open(source, bag); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, s.root.ID())
		return false, nil
	}

	if s.root == nil {
		return false, errNoObject
	}
	switch name {
	case ":id":
		fmt.Fprintln(s.out, s.root.ID())
	case ":value":
		v, err := s.root.Value()
		if err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, format(v))
	case ":type":
		entries, ok := s.root.TypeInfo()
		if !ok {
			fmt.Fprintln(s.out, "type information is disabled")
			return false, nil
		}
		enc := yaml.NewEncoder(s.out)
		defer enc.Close()
		if err := enc.Encode(entries); err != nil {
			return false, err
		}
	case ":members":
		m, err := s.root.Members()
		if err != nil {
			return false, err
		}
		enc := yaml.NewEncoder(s.out)
		defer enc.Close()
		if err := enc.Encode(m); err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("unknown command %s, try :help", name)
	}
	return false, nil
}

// eval evaluates a Go expression or a single assignment against the current object.
func (s *session) eval(src string) (any, error) {
	if s.root == nil {
		return nil, errNoObject
	}
	stmt, err := parseStmt(src)
	if err != nil {
		return nil, err
	}
	switch st := stmt.(type) {
	case *ast.ExprStmt:
		return s.expr(st.X)
	case *ast.AssignStmt:
		if st.Tok != token.ASSIGN || len(st.Lhs) != 1 || len(st.Rhs) != 1 {
			return nil, fmt.Errorf("only single assignments with = are supported")
		}
		v, err := s.expr(st.Rhs[0])
		if err != nil {
			return nil, err
		}
		return s.assign(st.Lhs[0], v)
	}
	return nil, fmt.Errorf("unsupported statement %T", stmt)
}

func parseStmt(src string) (ast.Stmt, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", "package p\nfunc _() {\n"+src+"\n}\n", 0)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	body := f.Decls[0].(*ast.FuncDecl).Body.List
	if len(body) != 1 {
		return nil, fmt.Errorf("parse %q: expected one expression or assignment", src)
	}
	return body[0], nil
}

func (s *session) expr(e ast.Expr) (any, error) {
	switch e := e.(type) {
	case *ast.ParenExpr:
		return s.expr(e.X)
	case *ast.BasicLit:
		return literal(e)
	case *ast.UnaryExpr:
		v, err := s.expr(e.X)
		if err != nil {
			return nil, err
		}
		return negate(e.Op, v)
	case *ast.Ident:
		switch e.Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "nil":
			return nil, nil
		case "_":
			return s.root, nil
		}
		return s.root.Get(e.Name)
	case *ast.SelectorExpr:
		p, err := s.object(e.X)
		if err != nil {
			return nil, err
		}
		return p.Get(e.Sel.Name)
	case *ast.IndexExpr:
		p, err := s.object(e.X)
		if err != nil {
			return nil, err
		}
		key, err := s.expr(e.Index)
		if err != nil {
			return nil, err
		}
		switch k := key.(type) {
		case int64:
			return p.GetIndex(int(k))
		case string:
			return p.Get(k)
		}
		return nil, fmt.Errorf("index must be an integer or a string, got %T", key)
	case *ast.CallExpr:
		fn, err := s.expr(e.Fun)
		if err != nil {
			return nil, err
		}
		args := make([]any, len(e.Args))
		for i, a := range e.Args {
			if args[i], err = s.expr(a); err != nil {
				return nil, err
			}
		}
		switch fn := fn.(type) {
		case *activex.Proxy:
			return fn.Call(args...)
		case func() (any, error):
			return fn()
		}
		return nil, fmt.Errorf("%s is not callable", format(fn))
	}
	return nil, fmt.Errorf("unsupported expression %T", e)
}

func (s *session) object(e ast.Expr) (*activex.Proxy, error) {
	v, err := s.expr(e)
	if err != nil {
		return nil, err
	}
	p, ok := v.(*activex.Proxy)
	if !ok {
		return nil, fmt.Errorf("%s is not an object", format(v))
	}
	return p, nil
}

func (s *session) assign(lhs ast.Expr, v any) (any, error) {
	switch lhs := lhs.(type) {
	case *ast.Ident:
		return s.root.Set(lhs.Name, v)
	case *ast.SelectorExpr:
		p, err := s.object(lhs.X)
		if err != nil {
			return nil, err
		}
		return p.Set(lhs.Sel.Name, v)
	case *ast.IndexExpr:
		p, err := s.object(lhs.X)
		if err != nil {
			return nil, err
		}
		key, err := s.expr(lhs.Index)
		if err != nil {
			return nil, err
		}
		switch k := key.(type) {
		case int64:
			return p.SetIndex(int(k), v)
		case string:
			return p.Set(k, v)
		}
		return nil, fmt.Errorf("index must be an integer or a string, got %T", key)
	}
	return nil, fmt.Errorf("cannot assign to %T", lhs)
}

func literal(lit *ast.BasicLit) (any, error) {
	switch lit.Kind {
	case token.INT:
		return strconv.ParseInt(lit.Value, 0, 64)
	case token.FLOAT:
		return strconv.ParseFloat(lit.Value, 64)
	case token.STRING:
		return strconv.Unquote(lit.Value)
	case token.CHAR:
		s, err := strconv.Unquote(lit.Value)
		return s, err
	}
	return nil, fmt.Errorf("unsupported literal %s", lit.Value)
}

func negate(op token.Token, v any) (any, error) {
	if op == token.ADD {
		return v, nil
	}
	if op == token.SUB {
		switch x := v.(type) {
		case int64:
			return -x, nil
		case float64:
			return -x, nil
		}
	}
	if op == token.NOT {
		if b, ok := v.(bool); ok {
			return !b, nil
		}
	}
	return nil, fmt.Errorf("operator %s does not apply to %s", op, format(v))
}

// format renders a result for the terminal. Proxies are shown by their value
// when they have one, otherwise by their path.
func format(v any) string {
	switch x := v.(type) {
	case nil:
		return "<empty>"
	case *activex.Proxy:
		val, err := x.Value()
		if err != nil {
			return fmt.Sprintf("[object %s]", x.ID())
		}
		if p, ok := val.(*activex.Proxy); ok {
			return fmt.Sprintf("[object %s]", p.ID())
		}
		return format(val)
	case string:
		return strconv.Quote(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case []any:
		items := make([]string, len(x))
		for i, item := range x {
			items[i] = format(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	case []activex.TypeEntry:
		out, err := yaml.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return strings.TrimRight(string(out), "\n")
	case func() (any, error):
		return "[function]"
	}
	return fmt.Sprint(v)
}
