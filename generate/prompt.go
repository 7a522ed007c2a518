package generate

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	defaults "github.com/Paranoid-AF/inkling/default"
	"github.com/Paranoid-AF/inkling/index"
)

// DefaultMaxSentences bounds how much the model is asked to write.
const DefaultMaxSentences = 2

// PromptData holds the data passed to the system prompt template.
type PromptData struct {
	Path         string
	Language     string
	MaxSentences int
	CursorMarker string
}

var promptFuncs = template.FuncMap{
	"bullet": func(items []string) string {
		if len(items) == 0 {
			return ""
		}
		var sb strings.Builder
		for _, item := range items {
			sb.WriteString("- ")
			sb.WriteString(item)
			sb.WriteString("\n")
		}
		return strings.TrimSuffix(sb.String(), "\n")
	},
	"join": func(items []string, sep string) string {
		return strings.Join(items, sep)
	},
}

var languages = map[string]string{
	".md":       "Markdown",
	".markdown": "Markdown",
	".txt":      "plain text",
	".rst":      "reStructuredText",
	".tex":      "LaTeX",
	".org":      "Org",
	".adoc":     "AsciiDoc",
	".html":     "HTML",
	".go":       "Go",
	".py":       "Python",
	".js":       "JavaScript",
	".ts":       "TypeScript",
	".rs":       "Rust",
	".sh":       "shell",
}

// Language names the document type from its extension, or "".
func Language(path string) string {
	return languages[strings.ToLower(filepath.Ext(path))]
}

// PromptBuilder renders the prompts for a generation request.
type PromptBuilder struct {
	tmpl *template.Template
}

// LoadCustomPrompt reads a custom prompt template.
// Returns empty string if no custom prompt exists.
func LoadCustomPrompt(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	slog.Info("loaded custom prompt", "path", path)
	return string(data)
}

// NewPromptBuilder parses custom as the system prompt template. An empty or
// unparsable template falls back to the embedded default.
func NewPromptBuilder(custom string) *PromptBuilder {
	if custom != "" {
		t, err := template.New("prompt").Funcs(promptFuncs).Parse(custom)
		if err == nil {
			return &PromptBuilder{tmpl: t}
		}
		slog.Warn("failed to parse prompt template, falling back to default", "error", err)
	}
	return &PromptBuilder{tmpl: defaultTemplate()}
}

func defaultTemplate() *template.Template {
	return template.Must(template.New("prompt").Funcs(promptFuncs).Parse(defaults.DefaultPrompt))
}

// Build fills req.System and req.User from the request's context.
func (b *PromptBuilder) Build(req *Request) {
	req.System = b.systemPrompt(req)
	req.User = userMessage(req)
}

func (b *PromptBuilder) systemPrompt(req *Request) string {
	data := PromptData{
		Path:         req.Path,
		Language:     Language(req.Path),
		MaxSentences: DefaultMaxSentences,
		CursorMarker: CursorMarker,
	}

	var buf strings.Builder
	if err := b.tmpl.Execute(&buf, data); err != nil {
		slog.Warn("failed to execute prompt template, falling back to default", "error", err)
		buf.Reset()
		defaultTemplate().Execute(&buf, data)
	}
	return strings.TrimRight(buf.String(), " \t\n")
}

// userMessage lays out the related passages and the text around the
// cursor. Shell code blocks are redacted before anything leaves the host.
func userMessage(req *Request) string {
	var sb strings.Builder

	if len(req.Related) > 0 {
		sb.WriteString("Related passages:\n")
		for _, p := range req.Related {
			sb.WriteString("- ")
			sb.WriteString(strings.ReplaceAll(index.RedactShellBlocks(p), "\n", " "))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Text:\n")
	sb.WriteString(index.RedactShellBlocks(req.Before + CursorMarker + req.After))
	return sb.String()
}
