// Package cli provides prompts and printers for the non-interactive
// commands.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ConfirmOptions holds options for the confirmation prompt.
type ConfirmOptions struct {
	// Question is the prompt to display to the user.
	Question string

	// Force skips the prompt and confirms. Set from --force.
	Force bool

	// Default is the answer for an empty line or EOF.
	Default bool

	// Input is the reader for user input (defaults to os.Stdin).
	Input io.Reader

	// Output is the writer for the prompt (defaults to os.Stderr).
	Output io.Writer
}

// Confirm asks a yes/no question and reports the answer.
func Confirm(opts ConfirmOptions) (bool, error) {
	if opts.Force {
		return true, nil
	}

	input := opts.Input
	if input == nil {
		input = os.Stdin
	}
	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	suffix := "(y/N)"
	if opts.Default {
		suffix = "(Y/n)"
	}
	_, _ = fmt.Fprintf(output, "%s %s: ", opts.Question, suffix)

	scanner := bufio.NewScanner(input)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return false, fmt.Errorf("failed to read input: %w", err)
		}
		return opts.Default, nil
	}

	switch strings.TrimSpace(strings.ToLower(scanner.Text())) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	case "":
		return opts.Default, nil
	default:
		return false, nil
	}
}

// ConfirmOverwrite asks before replacing an existing file. Missing files
// need no confirmation.
func ConfirmOverwrite(path string, opts ConfirmOptions) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s is a directory", path)
	}
	if opts.Question == "" {
		opts.Question = fmt.Sprintf("%s exists. Overwrite?", path)
	}
	return Confirm(opts)
}
