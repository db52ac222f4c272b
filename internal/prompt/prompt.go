// Package prompt resolves named operator prompts during interactive login.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Name identifies a prompt.
type Name string

const (
	Identifier Name = "identifier"
	Password   Name = "password"
	Code       Name = "code"
)

// Label returns the operator-facing question for a prompt.
func (n Name) Label() string {
	switch n {
	case Identifier:
		return "Please enter your number"
	case Password:
		return "Please enter your password"
	case Code:
		return "Please enter the code you received"
	default:
		return string(n)
	}
}

// Secret reports whether the answer must not be echoed.
func (n Name) Secret() bool {
	return n == Password
}

// ErrNoAnswer is returned when a resolver has nothing left to answer with.
var ErrNoAnswer = errors.New("prompt: no answer")

// Resolver answers a named prompt. Implementations block until an answer is
// available or ctx is done.
type Resolver interface {
	Resolve(ctx context.Context, name Name) (string, error)
}

// Func adapts a function to Resolver.
type Func func(ctx context.Context, name Name) (string, error)

func (f Func) Resolve(ctx context.Context, name Name) (string, error) { return f(ctx, name) }

// Scripted answers prompts from per-name queues. It records every prompt asked.
type Scripted struct {
	mu      sync.Mutex
	answers map[Name][]string
	asked   []Name
}

// NewScripted creates a resolver answering from the given queues.
func NewScripted(answers map[Name][]string) *Scripted {
	copied := make(map[Name][]string, len(answers))
	for k, v := range answers {
		copied[k] = append([]string(nil), v...)
	}
	return &Scripted{answers: copied}
}

func (s *Scripted) Resolve(ctx context.Context, name Name) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, name)
	queue := s.answers[name]
	if len(queue) == 0 {
		return "", fmt.Errorf("%w for %s", ErrNoAnswer, name)
	}
	s.answers[name] = queue[1:]
	return queue[0], nil
}

// Asked returns the prompts asked so far, in order.
func (s *Scripted) Asked() []Name {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Name(nil), s.asked...)
}

// Lines answers prompts by writing the label to w and reading one line from r.
// It serves piped, non-terminal input.
type Lines struct {
	mu      sync.Mutex
	r       *bufio.Reader
	w       io.Writer
	pending chan lineResult
}

type lineResult struct {
	line string
	err  error
}

// NewLines creates a line-oriented resolver.
func NewLines(r io.Reader, w io.Writer) *Lines {
	return &Lines{r: bufio.NewReader(r), w: w}
}

func (l *Lines) Resolve(ctx context.Context, name Name) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.w, "%s: ", name.Label())

	// A read abandoned by a cancelled call is still owed to the next caller.
	if l.pending == nil {
		ch := make(chan lineResult, 1)
		go func() {
			line, err := l.r.ReadString('\n')
			ch <- lineResult{line, err}
		}()
		l.pending = ch
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-l.pending:
		l.pending = nil
		line := strings.TrimSpace(res.line)
		switch {
		case res.err == nil:
			return line, nil
		case errors.Is(res.err, io.EOF) && line != "":
			return line, nil
		case errors.Is(res.err, io.EOF):
			return "", fmt.Errorf("%w for %s", ErrNoAnswer, name)
		default:
			return "", fmt.Errorf("read %s: %w", name, res.err)
		}
	}
}
