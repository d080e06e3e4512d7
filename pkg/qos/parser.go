// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package qos

import (
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/qos-governor/pkg/qos/pgcode"
	"github.com/dustin/go-humanize"
)

// Name is one of the recognized "qos.*" setting names.
type Name string

const (
	NameWorkMemLimit        Name = "qos.work_mem_limit"
	NameCPUCoreLimit        Name = "qos.cpu_core_limit"
	NameMaxConcurrentTx     Name = "qos.max_concurrent_tx"
	NameMaxConcurrentSelect Name = "qos.max_concurrent_select"
	NameMaxConcurrentUpdate Name = "qos.max_concurrent_update"
	NameMaxConcurrentDelete Name = "qos.max_concurrent_delete"
	NameMaxConcurrentInsert Name = "qos.max_concurrent_insert"
	NameWorkMemErrorLevel   Name = "qos.work_mem_error_level"
	NameEnabled             Name = "qos.enabled"
)

var recognizedNames = map[Name]struct{}{
	NameWorkMemLimit:        {},
	NameCPUCoreLimit:        {},
	NameMaxConcurrentTx:     {},
	NameMaxConcurrentSelect: {},
	NameMaxConcurrentUpdate: {},
	NameMaxConcurrentDelete: {},
	NameMaxConcurrentInsert: {},
	NameWorkMemErrorLevel:   {},
	NameEnabled:             {},
}

// IsValidName reports whether name is one of the names recognized by
// ApplyValue.
func IsValidName(name string) bool {
	_, ok := recognizedNames[Name(name)]
	return ok
}

// ParseEntry splits one persisted "name=value" configuration entry,
// trimming whitespace around both halves, the way the catalog reader
// (C2) does for every string in a (database, role) row's text[].
func ParseEntry(text string) (name, value string, err error) {
	idx := strings.IndexByte(text, '=')
	if idx < 0 {
		return "", "", errors.Newf("qos: malformed configuration entry %q", text)
	}
	name = strings.TrimSpace(text[:idx])
	value = strings.TrimSpace(text[idx+1:])
	if name == "" {
		return "", "", errors.Newf("qos: malformed configuration entry %q", text)
	}
	return name, value, nil
}

// ParseMemory parses a memory literal per spec ยง4.1's grammar: optional
// leading whitespace, a signed decimal integer, optional whitespace,
// and an optional case-insensitive unit suffix from {k, kB, m, MB, g,
// GB}. No suffix means kilobytes. The literal "-1" means "unset" and
// must not carry a suffix. Multiplication that would overflow int64 is
// an error rather than silently wrapping.
func ParseMemory(text string) (int64, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, errors.Newf("qos: empty memory literal")
	}

	digits := 0
	if s[0] == '+' || s[0] == '-' {
		digits = 1
	}
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	if digits == 0 || (digits == 1 && (s[0] == '+' || s[0] == '-')) {
		return 0, errors.Newf("qos: invalid memory literal %q", text)
	}

	numPart := s[:digits]
	rest := strings.TrimSpace(s[digits:])

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "qos: invalid memory literal %q", text)
	}

	if numPart == "-1" {
		if rest != "" {
			return 0, errors.Newf("qos: %q: -1 (unset) may not carry a unit suffix", text)
		}
		return Unset, nil
	}

	var multiplier int64 = 1024 // bare number => kilobytes
	if rest != "" {
		switch strings.ToLower(rest) {
		case "k", "kb":
			multiplier = 1024
		case "m", "mb":
			multiplier = 1024 * 1024
		case "g", "gb":
			multiplier = 1024 * 1024 * 1024
		default:
			return 0, errors.Newf("qos: invalid unit %q in memory literal %q", rest, text)
		}
	}

	bytes, ok := mulOverflows(n, multiplier)
	if !ok {
		return 0, errors.Newf("qos: memory literal %q overflows a 64-bit byte count", text)
	}
	return bytes, nil
}

// mulOverflows multiplies n by multiplier, returning ok=false if the
// result would not fit in an int64 (saturate-detect, per spec ยง4.1).
func mulOverflows(n, multiplier int64) (int64, bool) {
	if n == 0 {
		return 0, true
	}
	result := n * multiplier
	if result/multiplier != n {
		return 0, false
	}
	if result > math.MaxInt64 || result < math.MinInt64 {
		return 0, false
	}
	return result, true
}

// CanonicalMemory renders a byte count back to a canonical memory
// literal ("64MB", "1GB", ...) that ParseMemory reads back to the same
// count. Only -1 and positive multiples of 1024 get such a literal; any
// other count is rendered by humanize.IBytes (e.g. "1.5 KiB", "0 B"),
// which ParseMemory does not accept. ApplyValue and ParseConfigEntries
// store byte counts and do not call it.
func CanonicalMemory(bytes int64) string {
	if bytes == Unset {
		return "-1"
	}
	switch {
	case bytes != 0 && bytes%(1024*1024*1024) == 0:
		return strconv.FormatInt(bytes/(1024*1024*1024), 10) + "GB"
	case bytes != 0 && bytes%(1024*1024) == 0:
		return strconv.FormatInt(bytes/(1024*1024), 10) + "MB"
	case bytes != 0 && bytes%1024 == 0:
		return strconv.FormatInt(bytes/1024, 10) + "kB"
	default:
		return humanize.IBytes(uint64(bytes))
	}
}

// parseInt32Limit parses a non-negative 32-bit integer limit, with -1
// reserved as "unset". Any other negative value is an error.
func parseInt32Limit(text string) (int32, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "qos: invalid integer limit %q", text)
	}
	if n == Unset {
		return Unset, nil
	}
	if n < 0 {
		return 0, errors.Newf("qos: integer limit %q must be non-negative or -1", text)
	}
	return int32(n), nil
}

// parseErrorLevel parses qos.work_mem_error_level's two allowed values,
// case-insensitive.
func parseErrorLevel(text string) (ErrorLevel, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "warning":
		return ErrorLevelWarn, nil
	case "error":
		return ErrorLevelError, nil
	default:
		return ErrorLevelUnset, errors.Newf("qos: invalid work_mem_error_level %q, expected \"warning\" or \"error\"", text)
	}
}

// parseBool parses qos.enabled's accepted spellings.
func parseBool(text string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true", "on", "1":
		return true, nil
	case "false", "off", "0":
		return false, nil
	default:
		return false, errors.Newf("qos: invalid boolean %q", text)
	}
}

// ApplyValue parses text as the value for name and stores it into the
// matching field of limits. In strict mode (direct SET qos.* and ALTER
// ROLE/DATABASE ... SET qos.*) an unrecognized name or unparsable value
// is returned as *InvalidNameError / *InvalidValueError for the caller
// to surface as a user-visible error. In non-strict mode (scanning
// persisted catalog rows) the same errors are returned but the caller
// is expected to log and drop the entry rather than fail the
// statement -- ApplyValue itself never logs.
func ApplyValue(limits *Limits, name, text string, strict bool) error {
	n := Name(name)
	if !IsValidName(name) {
		return &InvalidNameError{Name: name}
	}

	var err error
	switch n {
	case NameWorkMemLimit:
		var v int64
		v, err = ParseMemory(text)
		if err == nil {
			limits.WorkMemBytes = v
		}
	case NameCPUCoreLimit:
		var v int32
		v, err = parseInt32Limit(text)
		if err == nil {
			limits.CPUCoreLimit = v
		}
	case NameMaxConcurrentTx:
		var v int32
		v, err = parseInt32Limit(text)
		if err == nil {
			limits.MaxConcurrentTx = v
		}
	case NameMaxConcurrentSelect:
		var v int32
		v, err = parseInt32Limit(text)
		if err == nil {
			limits.MaxConcurrentSelect = v
		}
	case NameMaxConcurrentUpdate:
		var v int32
		v, err = parseInt32Limit(text)
		if err == nil {
			limits.MaxConcurrentUpdate = v
		}
	case NameMaxConcurrentDelete:
		var v int32
		v, err = parseInt32Limit(text)
		if err == nil {
			limits.MaxConcurrentDelete = v
		}
	case NameMaxConcurrentInsert:
		var v int32
		v, err = parseInt32Limit(text)
		if err == nil {
			limits.MaxConcurrentInsert = v
		}
	case NameWorkMemErrorLevel:
		var v ErrorLevel
		v, err = parseErrorLevel(text)
		if err == nil {
			limits.WorkMemErrorLevel = v
		}
	case NameEnabled:
		// qos.enabled is a process-wide flag (spec ยง6), not a field
		// of Limits; accept and validate the grammar here so strict
		// SET qos.enabled = ... still round-trips through ApplyValue,
		// but there is nothing to store on limits.
		_, err = parseBool(text)
	}

	if err != nil {
		return &InvalidValueError{Name: name, Value: text, Cause: err}
	}
	return nil
}

// AsPGError renders an InvalidNameError into the host's error shape,
// tagged with InvalidParameterValue.
func (e *InvalidNameError) AsPGError() error {
	err := errors.Newf("qos: unrecognized setting %q", e.Name)
	err = errors.WithHintf(err, "Valid qos.* settings are documented in the qos_settings view")
	return withCode(err, pgcode.InvalidParameterValue)
}

// AsPGError renders an InvalidValueError into the host's error shape,
// tagged with InvalidParameterValue.
func (e *InvalidValueError) AsPGError() error {
	err := errors.Wrapf(e.Cause, "qos: invalid value %q for setting %q", e.Value, e.Name)
	return withCode(err, pgcode.InvalidParameterValue)
}
