package process

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyCommand is returned when a command has no program name.
	ErrEmptyCommand = errors.New("empty command")
	// ErrUnclosedQuote is returned when a quote is not terminated.
	ErrUnclosedQuote = errors.New("unclosed quote in command")
)

// ParseCommand splits a command line into arguments. Single and double
// quotes group words, a backslash escapes the next character outside single
// quotes, and an empty quoted string yields an empty argument.
func ParseCommand(command string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quote   rune
		inArg   bool
	)

	runes := []rune(strings.TrimSpace(command))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0 && r == quote:
			quote = 0
		case quote == '\'':
			current.WriteRune(r)
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
			inArg = true
		case quote == 0 && (r == '"' || r == '\''):
			quote = r
			inArg = true
		case quote == 0 && (r == ' ' || r == '\t'):
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}

	if quote != 0 {
		return nil, ErrUnclosedQuote
	}
	if inArg {
		args = append(args, current.String())
	}
	if len(args) == 0 || args[0] == "" {
		return nil, ErrEmptyCommand
	}
	return args, nil
}
