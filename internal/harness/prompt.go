package harness

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrAborted is returned when the user cancels a prompt.
var ErrAborted = errors.New("aborted by user")

// Prompter asks the user for a project's command-line parameters.
type Prompter interface {
	Prompt(ctx context.Context, project string) (string, error)
}

// NewPrompter returns an interactive form when in is a terminal and a plain
// line reader otherwise.
func NewPrompter(in *os.File, out io.Writer) Prompter {
	if isatty.IsTerminal(in.Fd()) || isatty.IsCygwinTerminal(in.Fd()) {
		return FormPrompter{}
	}
	return NewLinePrompter(in, out)
}

// FormPrompter prompts with a single-field huh form.
type FormPrompter struct{}

// Prompt implements Prompter.
func (FormPrompter) Prompt(ctx context.Context, project string) (string, error) {
	var value string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title(fmt.Sprintf("input parameters for %q", project)).
			Value(&value),
	))
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", ErrAborted
		}
		return "", fmt.Errorf("prompt: %w", err)
	}
	return value, nil
}

// LinePrompter reads one line per prompt.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLinePrompter creates a LinePrompter.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

// Prompt implements Prompter. End of input yields an empty answer.
func (p *LinePrompter) Prompt(_ context.Context, project string) (string, error) {
	fmt.Fprintf(p.out, "input parameters for %q: ", project)
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
