package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophsafe/internal/flagx"
	"github.com/dmitrijs2005/gophsafe/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer and
// nested fields distinguish "absent" from zero so that a partial file only
// overrides what it names.
type JsonConfig struct {
	RegistryDSN            *string         `json:"registry_dsn"`
	DefaultFormat          *string         `json:"default_format"`
	DereferenceMaxDepth    *int            `json:"dereference_max_depth"`
	Limits                 *jsonLimits     `json:"limits"`
	Argon2                 *jsonArgon2     `json:"argon2"`
	AESKDFRounds           *uint64         `json:"aes_kdf_rounds"`
	PasswordSafeIterations *uint32         `json:"password_safe_iterations"`
	HistoryMaxItems        *int            `json:"history_max_items"`
	Generator              *jsonGenerator  `json:"generator"`
	UnlockTimeout          *timex.Duration `json:"unlock_timeout"`
	LogLevel               *string         `json:"log_level"`
}

type jsonLimits struct {
	MaxKDFMemoryBytes *uint64 `json:"max_kdf_memory_bytes"`
	MaxKDFIterations  *uint64 `json:"max_kdf_iterations"`
	MaxFileSizeBytes  *uint64 `json:"max_file_size_bytes"`
}

type jsonArgon2 struct {
	Iterations  *uint64 `json:"iterations"`
	MemoryKiB   *uint64 `json:"memory_kib"`
	Parallelism *uint32 `json:"parallelism"`
}

type jsonGenerator struct {
	Length    *int  `json:"length"`
	Digits    *bool `json:"digits"`
	Symbols   *bool `json:"symbols"`
	Uppercase *bool `json:"uppercase"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// parseJson overlays Config with values loaded from a JSON file.
//
// The file path comes from the -c or -config flag in args. If neither is
// present no JSON is loaded. Read and unmarshal errors panic (caller should
// recover if desired).
//
// Intended usage is: defaults -> parseJson -> parseFlags, where later stages
// override earlier ones.
func parseJson(cfg *Config, args []string) {
	jsonConfigFile := flagx.JsonConfigFlagsFrom(args)
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	set(&cfg.RegistryDSN, jc.RegistryDSN)
	set(&cfg.DefaultFormat, jc.DefaultFormat)
	set(&cfg.DereferenceMaxDepth, jc.DereferenceMaxDepth)
	if l := jc.Limits; l != nil {
		set(&cfg.Limits.MaxKDFMemoryBytes, l.MaxKDFMemoryBytes)
		set(&cfg.Limits.MaxKDFIterations, l.MaxKDFIterations)
		set(&cfg.Limits.MaxFileSizeBytes, l.MaxFileSizeBytes)
	}
	if a := jc.Argon2; a != nil {
		set(&cfg.Argon2.Iterations, a.Iterations)
		set(&cfg.Argon2.MemoryKiB, a.MemoryKiB)
		set(&cfg.Argon2.Parallelism, a.Parallelism)
	}
	set(&cfg.AESKDFRounds, jc.AESKDFRounds)
	set(&cfg.PasswordSafeIterations, jc.PasswordSafeIterations)
	set(&cfg.HistoryMaxItems, jc.HistoryMaxItems)
	if g := jc.Generator; g != nil {
		set(&cfg.Generator.Length, g.Length)
		set(&cfg.Generator.Digits, g.Digits)
		set(&cfg.Generator.Symbols, g.Symbols)
		set(&cfg.Generator.Uppercase, g.Uppercase)
	}
	if jc.UnlockTimeout != nil {
		cfg.UnlockTimeout = jc.UnlockTimeout.Duration
	}
	set(&cfg.LogLevel, jc.LogLevel)
}
