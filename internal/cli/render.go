package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"aiddflow/internal/engine"
	"aiddflow/internal/gate"
	"aiddflow/internal/invoke"
	"aiddflow/internal/profile"
)

var (
	styleReady   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	styleBlocked = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleTicket  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	styleStage   = lipgloss.NewStyle().Bold(true)
	styleDim     = lipgloss.NewStyle().Faint(true)
	stylePresent = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleAbsent  = lipgloss.NewStyle().Faint(true)
)

func statusStyle(s gate.Status) lipgloss.Style {
	switch s {
	case gate.StatusReady:
		return styleReady
	case gate.StatusWarn:
		return styleWarn
	default:
		return styleBlocked
	}
}

// renderVerdict prints one gate verdict with its reasons and evidence.
func (a *App) renderVerdict(v gate.Verdict) {
	if v.Stage == "" {
		return
	}
	fmt.Fprintf(a.Out, "gate %s %s: %s\n",
		styleStage.Render(string(v.Stage)), styleTicket.Render(v.Ticket),
		statusStyle(v.Status).Render(string(v.Status)))
	for _, reason := range v.Reasons {
		fmt.Fprintf(a.Out, "  - %s\n", reason)
	}
	for _, ref := range v.EvidenceRefs {
		fmt.Fprintf(a.Out, "  %s\n", styleDim.Render("evidence: "+ref))
	}
}

// renderOutcome prints the invocation and apply summary of a successful
// dispatch, including the resolved dialect posture.
func (a *App) renderOutcome(result *engine.Result) {
	a.renderProfile(result.Profile)

	if inv := result.Invocation; inv != nil {
		fmt.Fprintf(a.Out, "ran %s %s (invocation %s)\n",
			styleStage.Render(string(inv.Stage)), styleTicket.Render(inv.Ticket), inv.InvocationID)
		events := invoke.ParseEvents(strings.NewReader(inv.Stdout))
		shown := len(events)
		if max := a.Config.Output.TruncateLines; max > 0 && shown > max {
			shown = max
		}
		for _, event := range events[:shown] {
			line := event.Message
			if event.Path != "" {
				line += " (" + event.Path + ")"
			}
			fmt.Fprintf(a.Out, "  %s %s\n",
				styleDim.Render("["+event.Type+"]"), clipLine(line, a.Config.Output.TruncateLength))
		}
		if rest := len(events) - shown; rest > 0 {
			fmt.Fprintf(a.Out, "  %s\n", styleDim.Render(fmt.Sprintf("(%d more lines in report)", rest)))
		}
		fmt.Fprintf(a.Out, "  %s\n", styleDim.Render("output: "+inv.OutputRef))
	}
	if ap := result.Apply; ap != nil && (len(ap.Applied) > 0 || len(ap.AlreadyApplied) > 0) {
		fmt.Fprintf(a.Out, "actions: %d applied, %d already applied\n",
			len(ap.Applied), len(ap.AlreadyApplied))
	}
	if result.PipelineDone {
		fmt.Fprintf(a.Out, "%s\n", styleReady.Render("pipeline complete"))
	} else if result.NextStage != "" {
		fmt.Fprintf(a.Out, "next: %s\n", result.NextStage)
	}
}

// renderProfile prints the resolved dialect: search paths, output limits,
// and the permission posture.
func (a *App) renderProfile(p profile.Profile) {
	posture := "diagnostics-bypass off"
	if p.DiagnosticsBypass {
		posture = "diagnostics-bypass ON"
	}
	fmt.Fprintf(a.Out, "%s\n", styleDim.Render(fmt.Sprintf(
		"profile %s | skills %s | stdout<=%d stderr<=%d | %s",
		p.Name, summarizePaths(profile.SkillsSearchPaths(p)),
		p.MaxStdoutBytes, p.MaxStderrBytes, posture)))
}

func clipLine(line string, max int) string {
	if max <= 0 || len(line) <= max {
		return line
	}
	return line[:max] + "..."
}

func summarizePaths(paths []string) string {
	if len(paths) == 0 {
		return "(none)"
	}
	return strings.Join(paths, ":")
}
