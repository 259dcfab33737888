// Package dispatch normalizes raw stage commands into dispatch targets.
//
// Hosts emit commands in several dialects: a leader character, an optional
// namespace token, a stage token (canonical or legacy alias), then positional
// and flag arguments. The normalizer folds all of that into a [Target] with a
// canonical stage, a ticket, and any free-text note. It is pure: no state is
// read or written, and normalizing an already-canonical command is a no-op.
package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"aiddflow/internal/profile"
	"aiddflow/internal/stage"
)

// ErrUnrecognizedCommand is a sentinel error indicating the command token
// matched neither a canonical stage nor a legacy alias. The wrapped message
// carries the offending token and the supported set.
var ErrUnrecognizedCommand = errors.New("unrecognized stage command")

// Target is the normalized form of one incoming command.
type Target struct {
	// RawCommand is the command string exactly as the host supplied it.
	RawCommand string

	// Requested is the normalized token before alias resolution.
	Requested string

	// Stage is the canonical stage the command resolves to.
	Stage stage.Stage

	// IsLegacyAlias is true when Requested differed from the canonical name.
	IsLegacyAlias bool

	// Ticket is the first non-flag positional argument, or empty. When a
	// stage token itself carries trailing text ("/implement T-1"), the first
	// trailing token is treated the same way.
	Ticket string

	// Note is the remaining free text after the ticket.
	Note string

	// Flags holds --flag or --flag=value arguments, with bare flags mapped
	// to "true".
	Flags map[string]string
}

// Normalize parses a raw command string plus argument list into a [Target].
//
// The dialect prefix (leader and namespace) is stripped according to the
// supplied profile. The remaining token is resolved through the stage lexicon,
// legacy aliases included. The first non-flag argument becomes the ticket.
//
// Returns an error wrapping [ErrUnrecognizedCommand] when no stage matches.
// Normalize has no side effects; feeding a canonical token back through
// produces an identical target.
func Normalize(rawCommand string, args []string, p profile.Profile) (Target, error) {
	stripped := profile.StripHostPrefix(rawCommand, p)
	token := stripped
	trailing := ""
	if head, rest, ok := strings.Cut(stripped, " "); ok {
		token, trailing = head, strings.TrimSpace(rest)
	}

	requested := stage.Normalize(token)
	if requested == "" {
		return Target{}, fmt.Errorf("%w: empty command", ErrUnrecognizedCommand)
	}

	resolved := stage.Resolve(requested)
	if !resolved.IsValid() {
		return Target{}, fmt.Errorf("%w: %q (supported: %s)",
			ErrUnrecognizedCommand, requested, strings.Join(stage.Supported(true), ", "))
	}

	positional, flags := splitArgs(args, trailing)

	target := Target{
		RawCommand:    rawCommand,
		Requested:     requested,
		Stage:         resolved,
		IsLegacyAlias: string(resolved) != requested,
		Flags:         flags,
	}
	if len(positional) > 0 {
		target.Ticket = positional[0]
		target.Note = strings.Join(positional[1:], " ")
	}
	return target, nil
}

// splitArgs separates flag arguments from positional ones. Trailing text from
// the command string itself is treated as leading positional input.
func splitArgs(args []string, trailing string) ([]string, map[string]string) {
	var all []string
	if trailing != "" {
		all = append(all, strings.Fields(trailing)...)
	}
	all = append(all, args...)

	var positional []string
	flags := make(map[string]string)
	for i := 0; i < len(all); i++ {
		arg := all[i]
		if !strings.HasPrefix(arg, "--") {
			positional = append(positional, arg)
			continue
		}
		name := strings.TrimPrefix(arg, "--")
		if key, value, ok := strings.Cut(name, "="); ok {
			flags[key] = value
			continue
		}
		// A flag followed by a non-flag token consumes it as its value.
		if i+1 < len(all) && !strings.HasPrefix(all[i+1], "--") {
			flags[name] = all[i+1]
			i++
			continue
		}
		flags[name] = "true"
	}
	return positional, flags
}
