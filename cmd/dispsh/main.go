// Command dispsh is an interactive shell over late-bound automation objects.
//
//	dispsh                          # the Demo.Calculator class
//	dispsh -f object.yaml           # a YAML document exposed as an object
//	dispsh -e 'Add(2)' -e 'History' # evaluate and exit
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/podhmo/go-activex"
)

const historyFile = ".dispsh_history"

type exprList []string

func (l *exprList) String() string { return strings.Join(*l, "; ") }
func (l *exprList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	var (
		file     string
		class    string
		async    bool
		typeInfo bool
		activate bool
		level    string
		exprs    exprList
	)

	flag.StringVar(&file, "f", "", "YAML file exposed as the root object")
	flag.StringVar(&class, "class", demoClass, "class identifier of the root object")
	flag.BoolVar(&async, "async", true, "run calls on the background processor")
	flag.BoolVar(&typeInfo, "type", true, "read type metadata of objects")
	flag.BoolVar(&activate, "activate", false, "prefer a running instance of the class")
	flag.StringVar(&level, "log-level", "warn", "log level (debug, info, warn, error)")
	flag.Var(&exprs, "e", "expression to evaluate (repeatable); skips the interactive shell")
	flag.Parse()

	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		log.Fatalf("!! invalid -log-level: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))

	source := class
	if file != "" {
		source = file
	}
	options := []activex.Option{
		activex.WithAsync(async),
		activex.WithTypeInfo(typeInfo),
		activex.WithActivate(activate),
	}
	if err := run(source, exprs, logger, options); err != nil {
		log.Fatalf("!! %+v", err)
	}
}

func run(source string, exprs []string, logger *slog.Logger, options []activex.Option) error {
	if err := activex.Initialize(activex.WithLogger(logger)); err != nil {
		return err
	}
	defer activex.Uninitialize()
	registerDemo(activex.DefaultRegistry)

	s := newSession(os.Stdout, logger, activex.DefaultRegistry, options...)
	if err := s.open(source, nil); err != nil {
		return err
	}
	defer s.close()

	if len(exprs) > 0 {
		return batch(s, exprs)
	}
	return repl(s)
}

func batch(s *session, exprs []string) error {
	for _, e := range exprs {
		quit, err := s.run(e)
		if err != nil {
			return err
		}
		if quit {
			break
		}
	}
	return nil
}

func repl(s *session) error {
	fmt.Fprintf(s.out, "dispsh: %s (:help for help)\n", s.root.ID())

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		line, err := ln.Prompt("> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(s.out)
				break
			}
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ln.AppendHistory(line)

		quit, err := s.run(line)
		if err != nil {
			fmt.Fprintln(s.out, "error:", err)
			continue
		}
		if quit {
			break
		}
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
	return nil
}
