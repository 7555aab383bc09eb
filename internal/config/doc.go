// Package config loads runtime configuration for the gophsafe tool.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-f, -format string       format used for new databases (kdbx, kdbx3, kdb, psafe3)
//	-r, -registry string     DSN of the sqlite registry of known databases
//	-d, -deref-depth int     maximum field reference expansion passes
//	-l, -log-level string    debug, info, warn or error
//
// # JSON schema
//
// Durations use timex.Duration, so values can be either strings like "5m"
// or integer nanoseconds. Every key is optional; missing keys keep defaults:
//
//	{
//	  "registry_dsn": "file:/home/me/.config/gophsafe/safes.db",
//	  "default_format": "kdbx",
//	  "dereference_max_depth": 10,
//	  "limits": {"max_kdf_memory_bytes": 67108864, "max_kdf_iterations": 50000000, "max_file_size_bytes": 67108864},
//	  "argon2": {"iterations": 2, "memory_kib": 65536, "parallelism": 2},
//	  "aes_kdf_rounds": 60000,
//	  "password_safe_iterations": 262144,
//	  "history_max_items": 10,
//	  "generator": {"length": 20, "digits": true, "symbols": true, "uppercase": true},
//	  "unlock_timeout": "5m",
//	  "log_level": "info"
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
