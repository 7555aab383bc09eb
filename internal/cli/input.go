package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/session"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
// In tests you can replace it with a stub to avoid touching the terminal.
var readPassword = term.ReadPassword

// GetSimpleText prints a prompt to w and reads a single line of input from reader.
// The trailing newline is trimmed. If EOF occurs after some input was read,
// the partial line is returned.
//
// Example prompt format:
//
//	Prompt text
//	> _
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetPassword prints prompt to w and reads a password from the terminal
// without echo. A newline is printed after the read to keep the UI tidy.
//
// The returned byte slice should be wiped by the caller when no longer needed.
func GetPassword(w io.Writer, prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt+": "); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// GetNewPassword asks for a password twice and fails if the entries differ.
func GetNewPassword(w io.Writer) ([]byte, error) {
	pw, err := GetPassword(w, "New master password")
	if err != nil {
		return nil, err
	}
	again, err := GetPassword(w, "Repeat master password")
	defer common.WipeByteArray(again)
	if err != nil {
		common.WipeByteArray(pw)
		return nil, err
	}
	if string(pw) != string(again) {
		common.WipeByteArray(pw)
		return nil, fmt.Errorf("%w: passwords do not match", common.ErrorValidation)
	}
	return pw, nil
}

// GetMultiline prints a prompt to w and reads multiple lines until an empty
// line is entered (i.e., the user presses Enter twice). The trailing newline
// on each line is trimmed and the collected text is joined with '\n'.
func GetMultiline(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n(press Enter on an empty line to finish)\n"); err != nil {
		return "", err
	}

	var lines []string
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		lines = append(lines, line)
		if err != nil {
			break
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

// GetFields reads "name=value" lines until an empty line. Whitespace around
// the name is dropped, the value is kept as typed.
func GetFields(reader *bufio.Reader, w io.Writer) ([]session.Field, error) {
	fmt.Fprintln(w, "Enter fields in the format name=value (empty line to finish)")

	fields := make([]session.Field, 0)
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		f, perr := parseField(line)
		if perr != nil {
			return nil, perr
		}
		fields = append(fields, f)
		if err != nil {
			break
		}
	}
	return fields, nil
}

func parseField(s string) (session.Field, error) {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return session.Field{}, fmt.Errorf("%w: expected name=value, got %q", common.ErrorValidation, s)
	}
	return session.Field{Key: name, Value: value}, nil
}
