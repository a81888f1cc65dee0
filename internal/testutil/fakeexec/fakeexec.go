// Package fakeexec provides a scripted tools.Executor for tests.
package fakeexec

import (
	"context"
	"strings"
	"sync"

	"github.com/danmuck/edgedash/internal/tools"
)

// Rule answers scripts containing Match with Result.
type Rule struct {
	Match  string
	Result tools.ExecResult
}

// Executor matches scripts against rules in order. Unmatched scripts fail
// with exit code 127.
type Executor struct {
	Rules []Rule
	Tools map[string]bool

	mu    sync.Mutex
	calls []tools.Command
	which []string
}

var _ tools.Executor = (*Executor)(nil)

func New(rules ...Rule) *Executor {
	return &Executor{Rules: rules, Tools: map[string]bool{}}
}

// OK is a successful result with stdout.
func OK(stdout string) tools.ExecResult {
	return tools.ExecResult{OK: true, Stdout: stdout}
}

// Fail is a failed result with an exit code.
func Fail(code int32, stderr string) tools.ExecResult {
	return tools.ExecResult{OK: false, Stderr: stderr, ExitCode: code, Error: "exit status"}
}

func (e *Executor) On(match string, result tools.ExecResult) *Executor {
	e.Rules = append(e.Rules, Rule{Match: match, Result: result})
	return e
}

func (e *Executor) WithTool(name string) *Executor {
	e.Tools[name] = true
	return e
}

func (e *Executor) Run(_ context.Context, cmd tools.Command) tools.ExecResult {
	e.mu.Lock()
	e.calls = append(e.calls, cmd)
	rules := e.Rules
	e.mu.Unlock()

	for _, rule := range rules {
		if strings.Contains(cmd.Script, rule.Match) {
			return rule.Result
		}
	}
	return tools.ExecResult{OK: false, ExitCode: 127, Error: "no rule for script"}
}

func (e *Executor) Which(_ context.Context, name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.which = append(e.which, name)
	return e.Tools[name]
}

// Calls returns executed commands in order.
func (e *Executor) Calls() []tools.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]tools.Command, len(e.calls))
	copy(out, e.calls)
	return out
}

// Ran reports whether any executed script contained match.
func (e *Executor) Ran(match string) bool {
	for _, c := range e.Calls() {
		if strings.Contains(c.Script, match) {
			return true
		}
	}
	return false
}

// Checked returns tool names passed to Which.
func (e *Executor) Checked() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.which))
	copy(out, e.which)
	return out
}
