package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"

	"github.com/wippyai/facesdk/runtime"
)

const (
	historyFile = ".facesdk_history"
	prompt      = "facesdk> "
)

// shell runs one command per line against a context.
type shell struct {
	svc  *runtime.Service
	root *runtime.Context
	blk  *runtime.ProcessingBlock
	out  io.Writer
}

type command struct {
	usage string
	help  string
	run   func(s *shell, args string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"show":    {"show [path]", "print a subtree as JSON", (*shell).show},
		"tree":    {"tree [path]", "draw a subtree", (*shell).tree},
		"ls":      {"ls [path]", "list the children of a container", (*shell).ls},
		"set":     {"set <path> <json|yaml>", "replace the value at path, creating keys", (*shell).set},
		"push":    {"push <path> <json|yaml>", "append a value to the array at path", (*shell).push},
		"clear":   {"clear [path]", "reset a value to none", (*shell).clear},
		"process": {"process [path]", "run the processing block on a subtree", (*shell).process},
		"help":    {"help", "list commands", (*shell).help},
	}
}

func runRepl(svc *runtime.Service, root *runtime.Context, blk *runtime.ProcessingBlock) error {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(complete)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	s := &shell{svc: svc, root: root, blk: blk, out: os.Stdout}
	if blk != nil {
		fmt.Fprintf(s.out, "block %s (%s); type help for commands\n", blk.UnitType(), blk.ID())
	} else {
		fmt.Fprintln(s.out, "no processing block; type help for commands")
	}

	for {
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Fprintln(s.out)
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)
		if line == "quit" || line == "exit" {
			return nil
		}
		if err := s.exec(line); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

func complete(line string) []string {
	var out []string
	for name := range commands {
		if strings.HasPrefix(name, line) {
			out = append(out, name+" ")
		}
	}
	sort.Strings(out)
	return out
}

func (s *shell) exec(line string) error {
	name, args, _ := strings.Cut(line, " ")
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	return cmd.run(s, strings.TrimSpace(args))
}

func (s *shell) at(path string, create bool) (treeNode, error) {
	return resolve(s.root, splitPath(path), create)
}

// pathAndValue splits "<path> <literal>".
func pathAndValue(args string) (string, any, error) {
	path, raw, ok := strings.Cut(args, " ")
	if !ok {
		return "", nil, fmt.Errorf("missing value")
	}
	lit, err := parseLiteral([]byte(raw))
	return path, lit, err
}

func (s *shell) show(args string) error {
	n, err := s.at(args, false)
	if err != nil {
		return err
	}
	lit, err := n.ToLiteral()
	if err != nil {
		return err
	}
	return writeJSON(s.out, lit, true)
}

func (s *shell) tree(args string) error {
	n, err := s.at(args, false)
	if err != nil {
		return err
	}
	lit, err := n.ToLiteral()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(s.out, drawTree(lit))
	return err
}

func (s *shell) ls(args string) error {
	n, err := s.at(args, false)
	if err != nil {
		return err
	}
	entries, err := children(n)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(s.out, "%-24s %-14s %s\n", e.name, e.kind, e.preview)
	}
	return nil
}

func (s *shell) set(args string) error {
	path, lit, err := pathAndValue(args)
	if err != nil {
		return err
	}
	n, err := s.at(path, true)
	if err != nil {
		return err
	}
	return n.Set(lit)
}

func (s *shell) push(args string) error {
	path, lit, err := pathAndValue(args)
	if err != nil {
		return err
	}
	n, err := s.at(path, true)
	if err != nil {
		return err
	}
	v, err := s.svc.CreateContext(lit)
	if err != nil {
		return err
	}
	defer v.Close()
	return n.PushBack(v)
}

func (s *shell) clear(args string) error {
	n, err := s.at(args, false)
	if err != nil {
		return err
	}
	return n.Clear()
}

func (s *shell) process(args string) error {
	if s.blk == nil {
		return fmt.Errorf("no processing block; start with -unit")
	}
	n, err := s.at(args, false)
	if err != nil {
		return err
	}
	return s.blk.Process(n)
}

func (s *shell) help(string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands[name]
		fmt.Fprintf(s.out, "  %-26s %s\n", c.usage, c.help)
	}
	fmt.Fprintf(s.out, "  %-26s %s\n", "quit", "leave the shell")
	return nil
}
