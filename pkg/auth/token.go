package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// LoginPrompt holds what the user typed at the login prompt.
type LoginPrompt struct {
	Email    string
	Password string
}

// PromptLogin reads an email and a password, one per line, from r.
func PromptLogin(r io.Reader, w io.Writer) (*LoginPrompt, error) {
	scanner := bufio.NewScanner(r)

	email, err := promptLine(scanner, w, "Email: ")
	if err != nil {
		return nil, err
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email %q", email)
	}

	password, err := promptLine(scanner, w, "Password: ")
	if err != nil {
		return nil, err
	}

	return &LoginPrompt{Email: email, Password: password}, nil
}

func promptLine(scanner *bufio.Scanner, w io.Writer, label string) (string, error) {
	fmt.Fprint(w, label)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return "", errors.New("no input received")
	}

	value := strings.TrimSpace(scanner.Text())
	if value == "" {
		return "", fmt.Errorf("%s cannot be empty", strings.ToLower(strings.TrimSuffix(label, ": ")))
	}
	return value, nil
}
