// Package security validates the commands the gateway is about to spawn
// as stdio child MCP servers, before any transport touches exec.Command.
// It implements the allow-list and shell-metacharacter checks of §4.2 so
// a malicious or malformed provider config can never smuggle a shell
// invocation into a subprocess launch.
package security

import (
	"path/filepath"
	"strings"

	"github.com/mcpvgw/vgateway/pkg/gwerrors"
)

// metacharacters that must never appear in a command or argument; their
// presence means something downstream intends a shell to interpret the
// string rather than exec it directly.
const metacharacters = ";&|`$()<>\n\r\t\x00"

// shellFlags are command-string flags ("run this text in a shell") that
// defeat the allow-list even when the base command itself is allowed,
// because they accept an opaque string the child shell will interpret.
var shellFlags = map[string]bool{
	"-c":       true,
	"--command": true,
}

// DefaultAllowedCommands is the default allow-list of language/container
// runtimes a stdio provider may launch.
var DefaultAllowedCommands = []string{
	"python", "python3", "node", "npx", "npm", "deno", "bun",
	"go", "uv", "uvx", "docker", "podman",
}

// Validator checks a command and its arguments against an allow-list of
// base commands before a stdio transport is permitted to spawn it.
type Validator struct {
	allowed map[string]bool
}

// NewValidator builds a Validator from an explicit allow-list. A nil or
// empty list falls back to DefaultAllowedCommands.
func NewValidator(allowedCommands []string) *Validator {
	if len(allowedCommands) == 0 {
		allowedCommands = DefaultAllowedCommands
	}
	allowed := make(map[string]bool, len(allowedCommands))
	for _, c := range allowedCommands {
		allowed[c] = true
	}
	return &Validator{allowed: allowed}
}

// ValidateCommand checks command and args, returning a *gwerrors.Error of
// KindInvalidRequest describing the first violation found.
func (v *Validator) ValidateCommand(command string, args []string) error {
	if command == "" {
		return gwerrors.New(gwerrors.KindInvalidRequest, "command must not be empty")
	}
	if err := checkMetacharacters("command", command); err != nil {
		return err
	}
	if strings.Contains(command, "../") || strings.Contains(command, `..\`) {
		return gwerrors.New(gwerrors.KindInvalidRequest, "command must not contain path traversal: %q", command)
	}

	base := filepath.Base(command)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if !v.allowed[base] && !v.allowed[command] {
		return gwerrors.New(gwerrors.KindInvalidRequest, "command %q is not in the allowed runtime list", command)
	}

	for _, a := range args {
		if err := checkMetacharacters("argument", a); err != nil {
			return err
		}
		if strings.Contains(a, "../") || strings.Contains(a, `..\`) {
			return gwerrors.New(gwerrors.KindInvalidRequest, "argument must not contain path traversal: %q", a)
		}
		if shellFlags[a] {
			return gwerrors.New(gwerrors.KindInvalidRequest, "argument %q invokes a command-string shell and is rejected", a)
		}
	}
	return nil
}

func checkMetacharacters(kind, s string) error {
	if strings.ContainsAny(s, metacharacters) {
		return gwerrors.New(gwerrors.KindInvalidRequest, "%s contains a disallowed shell metacharacter: %q", kind, s)
	}
	return nil
}
