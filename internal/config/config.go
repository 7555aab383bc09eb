package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/gophsafe/internal/deref"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/format/kdbx"
	"github.com/dmitrijs2005/gophsafe/internal/format/pwsafe"
	"github.com/dmitrijs2005/gophsafe/internal/format/registry"
	"github.com/dmitrijs2005/gophsafe/internal/passgen"
)

// Limits bound the work an unattended open may do. Zero means unlimited.
type Limits struct {
	MaxKDFMemoryBytes uint64
	MaxKDFIterations  uint64
	MaxFileSizeBytes  uint64
}

// Argon2 holds the Argon2id cost for new KDBX 4 databases.
type Argon2 struct {
	Iterations  uint64
	MemoryKiB   uint64
	Parallelism uint32
}

// Generator configures the passwords of new records.
type Generator struct {
	Length    int
	Digits    bool
	Symbols   bool
	Uppercase bool
}

// Config holds runtime settings for gophsafe.
//
// UnlockTimeout is how long the shell stays unlocked without input; zero
// disables the automatic lock.
type Config struct {
	RegistryDSN            string
	DefaultFormat          string
	DereferenceMaxDepth    int
	Limits                 Limits
	Argon2                 Argon2
	AESKDFRounds           uint64
	PasswordSafeIterations uint32
	HistoryMaxItems        int
	Generator              Generator
	UnlockTimeout          time.Duration
	LogLevel               string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.RegistryDSN = defaultRegistryDSN()
	c.DefaultFormat = "kdbx"
	c.DereferenceMaxDepth = deref.DefaultMaxDepth

	l := format.DefaultLimits()
	c.Limits = Limits{
		MaxKDFMemoryBytes: l.MaxKDFMemoryBytes,
		MaxKDFIterations:  l.MaxKDFIterations,
		MaxFileSizeBytes:  l.MaxFileSizeBytes,
	}
	c.Argon2 = Argon2{
		Iterations:  kdbx.DefaultArgon2Iterations,
		MemoryKiB:   kdbx.DefaultArgon2MemoryKiB,
		Parallelism: kdbx.DefaultArgon2Parallelism,
	}
	c.AESKDFRounds = kdbx.DefaultAESRounds
	c.PasswordSafeIterations = pwsafe.DefaultIterations
	c.HistoryMaxItems = 10

	g := passgen.DefaultOptions()
	c.Generator = Generator{Length: g.Length, Digits: g.Digits, Symbols: g.Symbols, Uppercase: g.Uppercase}
	c.UnlockTimeout = 5 * time.Minute
	c.LogLevel = "info"
}

func defaultRegistryDSN() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "file:safes.db"
	}
	return "file:" + filepath.Join(dir, "gophsafe", "safes.db")
}

// LoadConfig constructs a Config from os.Args: defaults, then JSON (if
// present), then command-line flags. Later sources take precedence.
func LoadConfig() *Config {
	return Load(os.Args[1:])
}

// Load is LoadConfig over an explicit argument list.
func Load(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseFlags(cfg, args)
	return cfg
}

// Format resolves DefaultFormat, falling back to KDBX 4.
func (c *Config) Format() format.Format {
	f, err := format.ParseFormat(c.DefaultFormat)
	if err != nil {
		return format.KeePass4
	}
	return f
}

// FormatLimits converts Limits for the adaptors.
func (c *Config) FormatLimits() format.Limits {
	return format.Limits{
		MaxKDFMemoryBytes: c.Limits.MaxKDFMemoryBytes,
		MaxKDFIterations:  c.Limits.MaxKDFIterations,
		MaxFileSizeBytes:  c.Limits.MaxFileSizeBytes,
	}
}

// RegistryOptions returns the KDF costs for new databases.
func (c *Config) RegistryOptions() registry.Options {
	return registry.Options{
		PasswordSafeIterations: c.PasswordSafeIterations,
		AESKDFRounds:           c.AESKDFRounds,
		Argon2Iterations:       c.Argon2.Iterations,
		Argon2MemoryKiB:        c.Argon2.MemoryKiB,
		Argon2Parallelism:      c.Argon2.Parallelism,
	}
}

// GeneratorOptions converts Generator for passgen.
func (c *Config) GeneratorOptions() passgen.Options {
	return passgen.Options{
		Length:    c.Generator.Length,
		Digits:    c.Generator.Digits,
		Symbols:   c.Generator.Symbols,
		Uppercase: c.Generator.Uppercase,
	}
}
