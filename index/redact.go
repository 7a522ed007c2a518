package index

import (
	"bytes"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// safeVars may appear verbatim in prompts and embeddings.
var safeVars = map[string]bool{
	"HOME": true, "USER": true, "PWD": true, "OLDPWD": true,
	"SHELL": true, "PATH": true, "LANG": true, "TERM": true,
	"EDITOR": true, "PAGER": true, "HOSTNAME": true, "LOGNAME": true,
	"TMPDIR": true, "XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true,
	"XDG_RUNTIME_DIR": true, "DISPLAY": true, "WAYLAND_DISPLAY": true,
	"HISTFILE": true, "HISTSIZE": true, "SHLVL": true,
	"COLUMNS": true, "LINES": true, "LC_ALL": true, "LC_CTYPE": true,
}

var specialParams = map[string]bool{
	"?": true, "!": true, "#": true, "@": true, "*": true,
	"-": true, "$": true, "_": true,
	"0": true, "1": true, "2": true, "3": true, "4": true,
	"5": true, "6": true, "7": true, "8": true, "9": true,
}

// RedactCommand rewrites a shell snippet so that sensitive variable
// references become $REDACTED and assignment values become ***. Safe
// variables such as PATH and HOME and the special parameters are kept.
func RedactCommand(cmd string) string {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(true))
	prog, err := parser.Parse(strings.NewReader(cmd), "")
	if err != nil {
		return regexRedact(cmd)
	}

	syntax.Walk(prog, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.ParamExp:
			if n.Param != nil && !safeVars[n.Param.Value] && !specialParams[n.Param.Value] {
				n.Param.Value = "REDACTED"
			}
		case *syntax.Assign:
			if n.Name != nil && !safeVars[n.Name.Value] && n.Value != nil {
				n.Value.Parts = []syntax.WordPart{&syntax.Lit{Value: "***"}}
			}
		}
		return true
	})

	var buf bytes.Buffer
	printer := syntax.NewPrinter(syntax.Indent(0))
	if err := printer.Print(&buf, prog); err != nil {
		return regexRedact(cmd)
	}
	return strings.TrimRight(buf.String(), "\n")
}

var (
	reBraceVar  = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	reSimpleVar = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	reAssign    = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)=(\S+)`)
)

// regexRedact handles snippets the parser rejects, which is common for
// half-typed scripts.
func regexRedact(cmd string) string {
	// ${VAR} → ${REDACTED}
	cmd = reBraceVar.ReplaceAllStringFunc(cmd, func(m string) string {
		name := reBraceVar.FindStringSubmatch(m)[1]
		if safeVars[name] || specialParams[name] {
			return m
		}
		return "${REDACTED}"
	})

	// $VAR → $REDACTED
	cmd = reSimpleVar.ReplaceAllStringFunc(cmd, func(m string) string {
		name := reSimpleVar.FindStringSubmatch(m)[1]
		if name == "REDACTED" { // already redacted by brace pass
			return m
		}
		if safeVars[name] || specialParams[name] {
			return m
		}
		return "$REDACTED"
	})

	// VAR=value → VAR=***
	cmd = reAssign.ReplaceAllStringFunc(cmd, func(m string) string {
		parts := reAssign.FindStringSubmatch(m)
		name := parts[1]
		if safeVars[name] {
			return m
		}
		return name + "=***"
	})

	return cmd
}

// shellLangs are the fence info strings treated as shell.
var shellLangs = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "shell": true, "console": true,
}

// RedactShellBlocks applies RedactCommand to the body of every fenced shell
// code block in text. A fence left open runs to the end of text, which is
// the usual state while the user is still typing the block.
func RedactShellBlocks(text string) string {
	var out strings.Builder
	rest := text
	for {
		open, bodyStart, ok := findShellFence(rest)
		if !ok {
			out.WriteString(rest)
			return out.String()
		}
		out.WriteString(rest[:bodyStart])

		body := rest[bodyStart:]
		end := len(body)
		if i := strings.Index(body, "\n"+open); i >= 0 {
			end = i + 1
		} else if strings.HasPrefix(body, open) {
			end = 0
		}
		if end > 0 {
			out.WriteString(redactBlock(body[:end]))
		}
		rest = body[end:]
		if strings.HasPrefix(rest, open) {
			out.WriteString(open)
			rest = rest[len(open):]
		}
	}
}

// findShellFence locates the next opening fence with a shell info string.
// It returns the fence marker and the offset just past the fence line.
func findShellFence(text string) (string, int, bool) {
	offset := 0
	for offset < len(text) {
		lineEnd := strings.IndexByte(text[offset:], '\n')
		if lineEnd < 0 {
			return "", 0, false
		}
		line := text[offset : offset+lineEnd]
		trimmed := strings.TrimLeft(line, " ")
		if strings.HasPrefix(trimmed, "```") {
			marker := trimmed[:len(trimmed)-len(strings.TrimLeft(trimmed, "`"))]
			lang := strings.TrimSpace(trimmed[len(marker):])
			if shellLangs[strings.ToLower(lang)] {
				return marker, offset + lineEnd + 1, true
			}
		}
		offset += lineEnd + 1
	}
	return "", 0, false
}

func redactBlock(body string) string {
	trailing := body[len(strings.TrimRight(body, "\n")):]
	redacted := RedactCommand(strings.TrimRight(body, "\n"))
	return redacted + trailing
}
