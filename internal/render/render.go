// Package render produces output from a fully assembled schema.Report and
// writes generated tests to disk.
package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/dshills/testgap/internal/schema"
)

// RenderJSON produces a pretty-printed JSON representation of the report.
// The output round-trips through json.Unmarshal back to an equal Report.
func RenderJSON(report *schema.Report) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("render: nil report")
	}
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json marshal: %w", err)
	}
	return b, nil
}

// RenderMarkdown produces a GitHub-flavoured Markdown summary of the report,
// suitable for PR comments or terminal output. Every target present in the
// report will appear in the output.
func RenderMarkdown(report *schema.Report) string {
	return markdown(report, true)
}

// markdown renders the report. Without html, test details use plain
// headings instead of collapsible blocks, for renderers that drop raw HTML.
func markdown(report *schema.Report, html bool) string {
	if report == nil {
		return ""
	}
	var sb strings.Builder
	s := report.Summary
	a := report.Analysis

	sb.WriteString("## testgap Report\n\n")
	if s.Verdict != "" {
		fmt.Fprintf(&sb, "**Verdict:** %s  \n", s.Verdict)
		fmt.Fprintf(&sb, "**Score:** %d/100  \n", s.Score)
	}
	fmt.Fprintf(&sb, "**Overall coverage:** %.1f%%  \n", a.OverallCoverage*100)
	fmt.Fprintf(&sb, "**Source files:** %d | **Test files:** %d | **Test/source ratio:** %.2f\n\n",
		a.SourceFiles, a.TestFiles, a.TestToSourceRatio)
	if s.Cancelled {
		sb.WriteString("> Run cancelled; results are partial.\n\n")
	}

	if len(a.Frameworks) > 0 {
		sb.WriteString("## Test Frameworks\n\n")
		sb.WriteString("| Framework | Files |\n")
		sb.WriteString("|---|---|\n")
		for _, fw := range a.Frameworks {
			fmt.Fprintf(&sb, "| %s | %d |\n", fw, a.FrameworkFiles[fw])
		}
		sb.WriteString("\n")
	}

	if len(a.Priorities) > 0 {
		sb.WriteString("## Coverage Gaps\n\n")
		sb.WriteString("| File | Coverage | In report |\n")
		sb.WriteString("|---|---|---|\n")
		for _, p := range a.Priorities {
			fmt.Fprintf(&sb, "| %s | %.1f%% | %s |\n", mdEscape(p.Path), p.Ratio*100, yesNo(p.Reported))
		}
		sb.WriteString("\n")
	}

	if len(report.Tests) > 0 {
		sb.WriteString("## Generated Tests\n\n")
		fmt.Fprintf(&sb, "**Generated:** %d | **Accepted:** %d (%.0f%%) | **Degraded:** %d | **Unresolved slots:** %d\n\n",
			s.Generated, s.Accepted, s.AcceptedPct, s.Degraded, s.Unresolved)
		for _, t := range report.Tests {
			writeTest(&sb, t, html)
		}
	}

	if len(a.Warnings) > 0 {
		sb.WriteString("## Warnings\n\n")
		for _, w := range a.Warnings {
			fmt.Fprintf(&sb, "- %s\n", mdEscape(w))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// writeTest renders one generated test into sb.
func writeTest(sb *strings.Builder, t schema.GeneratedTest, html bool) {
	status := "accepted"
	if !t.Validation.Accepted {
		status = "rejected"
	}
	template := t.TemplateName
	if template == "" {
		template = "free-form"
	}
	if html {
		fmt.Fprintf(sb, "<details>\n<summary><strong>%s</strong> [%s, %s] %s</summary>\n\n",
			t.Target, t.Kind, template, status)
	} else {
		fmt.Fprintf(sb, "### %s\n\n[%s, %s] %s  \n", t.Target, t.Kind, template, status)
	}
	if t.SuggestedPath != "" {
		fmt.Fprintf(sb, "**File:** `%s`  \n", t.SuggestedPath)
	}
	fmt.Fprintf(sb, "**Validation:** %s", t.Validation.State)
	if t.Validation.RemoteSkipped {
		sb.WriteString(" (remote review skipped)")
	}
	sb.WriteString("  \n")
	if t.Degraded {
		fmt.Fprintf(sb, "**Degraded:** %d unresolved slot(s)  \n", t.Unresolved)
	}
	sb.WriteString("\n")
	writeList(sb, "Issues", t.Validation.Issues)
	writeList(sb, "Suggestions", t.Validation.Suggestions)
	if t.Rendered != "" {
		fmt.Fprintf(sb, "```%s\n%s", fenceLang(t.Language), t.Rendered)
		if !strings.HasSuffix(t.Rendered, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("```\n\n")
	}
	if html {
		sb.WriteString("</details>\n\n")
	}
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "**%s:**\n\n", title)
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", mdEscape(it))
	}
	sb.WriteString("\n")
}

// RenderTerminal renders the Markdown summary for a terminal with glamour.
// An empty style picks one from the terminal's background; width <= 0 uses
// 80 columns.
func RenderTerminal(report *schema.Report, style string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("render: terminal renderer: %w", err)
	}
	out, err := r.Render(markdown(report, false))
	if err != nil {
		return "", fmt.Errorf("render: terminal: %w", err)
	}
	return out, nil
}

// WriteTests writes every test with rendered code under dir, at its
// suggested path. Tests that share a file are concatenated in order,
// separated by a blank line. It returns the written paths, sorted.
func WriteTests(dir string, tests []schema.GeneratedTest) ([]string, error) {
	var order []string
	bodies := make(map[string]*strings.Builder)
	for _, t := range tests {
		if strings.TrimSpace(t.Rendered) == "" {
			continue
		}
		rel := t.SuggestedPath
		if rel == "" {
			rel = schema.TestFileName(t.File, t.Framework)
		}
		b, ok := bodies[rel]
		if !ok {
			b = &strings.Builder{}
			bodies[rel] = b
			order = append(order, rel)
		} else {
			b.WriteString("\n")
		}
		b.WriteString(t.Rendered)
		if !strings.HasSuffix(t.Rendered, "\n") {
			b.WriteString("\n")
		}
	}

	written := make([]string, 0, len(order))
	for _, rel := range order {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return written, fmt.Errorf("render: create dir for %s: %w", rel, err)
		}
		if err := os.WriteFile(path, []byte(bodies[rel].String()), 0o644); err != nil {
			return written, fmt.Errorf("render: write %s: %w", rel, err)
		}
		written = append(written, path)
	}
	sort.Strings(written)
	return written, nil
}

func fenceLang(language string) string {
	if language == "javascript" {
		return "js"
	}
	return language
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// mdEscape replaces characters that would break Markdown table cells.
func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}
