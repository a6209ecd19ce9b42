//go:build windows

package sandbox

import "strings"

// quoteArguments renders argv0 and args into a single Windows command line
// using the canonical backslash/quote-run algorithm (Microsoft's "Everyone
// quotes command line arguments the wrong way"), the same rules CRT-based
// programs expect when they split GetCommandLineW/argv. Go's own os/exec
// reimplements an equivalent of this for direct CreateProcess use; since
// this package calls CreateProcessAsUser directly, the quoting has to be
// built here too.
func quoteArguments(argv0 string, args []string) (string, error) {
	var b strings.Builder
	if err := appendArg(&b, argv0); err != nil {
		return "", err
	}
	for _, a := range args {
		b.WriteByte(' ')
		if err := appendArg(&b, a); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func appendArg(b *strings.Builder, arg string) error {
	if strings.IndexByte(arg, 0) >= 0 {
		return jailSetupErr("nul byte found in argument", nil)
	}
	if !requiresQuoting(arg) {
		b.WriteString(arg)
		return nil
	}

	b.WriteByte('"')
	backslashes := 0
	for _, c := range []byte(arg) {
		switch c {
		case '\\':
			backslashes++
			continue
		case '"':
			for i := 0; i < backslashes*2+1; i++ {
				b.WriteByte('\\')
			}
			b.WriteByte('"')
		default:
			for i := 0; i < backslashes; i++ {
				b.WriteByte('\\')
			}
			b.WriteByte(c)
		}
		backslashes = 0
	}
	for i := 0; i < backslashes*2; i++ {
		b.WriteByte('\\')
	}
	b.WriteByte('"')
	return nil
}

func requiresQuoting(arg string) bool {
	if arg == "" {
		return true
	}
	for _, c := range []byte(arg) {
		switch c {
		case ' ', '\t', '\n', 0x0b, '"':
			return true
		}
	}
	return false
}

// encodeEnvBlock renders a sorted, case-insensitive-unique K=V environment
// block for CREATE_UNICODE_ENVIRONMENT: each entry NUL-terminated, the
// whole block double-NUL-terminated (an empty environment is "\x00\x00").
// Keys may not contain NUL, nor '=' anywhere but the first character.
func encodeEnvBlock(env map[string]string) (string, error) {
	keys := make([]string, 0, len(env))
	seen := map[string]struct{}{}
	for k := range env {
		// A leading '=' is the one Windows-special exception (e.g. the
		// per-drive-cwd pseudo-variables "=C:"); '=' anywhere else in the
		// key would make the entry unparseable.
		if strings.IndexByte(k[min(1, len(k)):], '=') >= 0 || strings.IndexByte(k, 0) >= 0 {
			return "", jailSetupErr("environment variable key must not contain interior '=' or nul: "+k, nil)
		}
		lower := strings.ToLower(k)
		if _, dup := seen[lower]; dup {
			return "", jailSetupErr("duplicate environment variable (case-insensitive): "+k, nil)
		}
		seen[lower] = struct{}{}
		keys = append(keys, k)
	}
	sortStringsFold(keys)

	var b strings.Builder
	for _, k := range keys {
		v := env[k]
		if strings.IndexByte(v, 0) >= 0 {
			return "", jailSetupErr("nul byte found in environment value for "+k, nil)
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte(0)
	}
	if len(keys) == 0 {
		b.WriteByte(0)
	}
	b.WriteByte(0)
	return b.String(), nil
}

// sortStringsFold sorts case-insensitively, matching Windows's own
// environment-block ordering convention.
func sortStringsFold(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && strings.ToLower(s[j-1]) > strings.ToLower(s[j]); j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
