// Package passgen generates random passwords for new records.
package passgen

import (
	"crypto/rand"
	"errors"
	"math/big"
)

const (
	lower   = "abcdefghijkmnopqrstuvwxyz"
	upper   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digits  = "23456789"
	symbols = "!#$%&*+-=?@^_~"
)

var ErrTooShort = errors.New("password length cannot fit the requested character classes")

// Options selects the character classes. Lowercase letters are always used.
type Options struct {
	Length    int
	Digits    bool
	Symbols   bool
	Uppercase bool
}

// DefaultOptions is a 20 character password with every class.
func DefaultOptions() Options {
	return Options{Length: 20, Digits: true, Symbols: true, Uppercase: true}
}

// Generate returns a password that contains at least one character of every
// enabled class. Look-alike characters (0/O, 1/l/I) are left out.
func Generate(o Options) (string, error) {
	classes := []string{lower}
	if o.Uppercase {
		classes = append(classes, upper)
	}
	if o.Digits {
		classes = append(classes, digits)
	}
	if o.Symbols {
		classes = append(classes, symbols)
	}
	if o.Length < len(classes) {
		return "", ErrTooShort
	}

	var all string
	for _, c := range classes {
		all += c
	}

	out := make([]byte, o.Length)
	for i := range out {
		set := all
		if i < len(classes) {
			set = classes[i]
		}
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		out[i] = c
	}

	// Fisher-Yates so the guaranteed characters are not always in front.
	for i := len(out) - 1; i > 0; i-- {
		j, err := randInt(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

func pick(set string) (byte, error) {
	i, err := randInt(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func randInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
