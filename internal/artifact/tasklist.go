package artifact

import (
	"fmt"
	"regexp"
	"strings"
)

// Section headings the tasklist artifact is expected to carry.
const (
	SectionTasks        = "Tasks"
	SectionProgressLog  = "Progress Log"
	SectionTouchedFiles = "Touched Files"
)

// taskLine matches one checklist entry: "- [ ] T1: Title" or "- [x] T1: Title".
var taskLine = regexp.MustCompile(`^- \[( |x|X)\] ([A-Za-z0-9._-]+): (.+)$`)

// TaskItem is one checklist entry in a tasklist artifact.
type TaskItem struct {
	ID    string
	Title string
	Done  bool
}

// TaskItems parses the checklist entries from the Tasks section. Lines that
// do not match the checklist shape are ignored.
func (d *Document) TaskItems() []TaskItem {
	section, ok := d.Section(SectionTasks)
	if !ok {
		return nil
	}
	var items []TaskItem
	for _, line := range strings.Split(section, "\n") {
		m := taskLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		items = append(items, TaskItem{
			ID:    m[2],
			Title: strings.TrimSpace(m[3]),
			Done:  m[1] == "x" || m[1] == "X",
		})
	}
	return items
}

// ValidateTasklist checks the structural shape a tasklist must have before
// implement, review, or qa may run: a Tasks section with at least one entry
// and no duplicate task IDs. Returns the problems found, empty when valid.
func (d *Document) ValidateTasklist() []string {
	var problems []string
	if !d.SectionFilled(SectionTasks) {
		problems = append(problems, "missing or empty Tasks section")
		return problems
	}
	items := d.TaskItems()
	if len(items) == 0 {
		problems = append(problems, "Tasks section has no checklist entries")
	}
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if seen[it.ID] {
			problems = append(problems, fmt.Sprintf("duplicate task id %q", it.ID))
		}
		seen[it.ID] = true
	}
	return problems
}

// SetItemDone marks the task with the given ID as done. Returns whether the
// task exists and whether the body changed (false when it was already done).
func (d *Document) SetItemDone(id string) (found, changed bool) {
	section, ok := d.Section(SectionTasks)
	if !ok {
		return false, false
	}
	lines := strings.Split(section, "\n")
	for i, line := range lines {
		m := taskLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil || m[2] != id {
			continue
		}
		found = true
		if m[1] == "x" || m[1] == "X" {
			return true, false
		}
		lines[i] = strings.Replace(line, "- [ ]", "- [x]", 1)
		d.SetSection(SectionTasks, strings.Join(lines, "\n"))
		return true, true
	}
	return false, false
}

// AppendProgress adds a timestamped-by-caller entry to the Progress Log
// section, creating the section when absent.
func (d *Document) AppendProgress(entry string) {
	d.AppendToSection(SectionProgressLog, "- "+strings.TrimSpace(entry))
}

// TouchedFiles returns the file paths declared in the Touched Files section,
// one per bullet line. These are the paths a work item claims it will modify;
// gates check them against the workspace boundary.
func (d *Document) TouchedFiles() []string {
	section, ok := d.Section(SectionTouchedFiles)
	if !ok {
		return nil
	}
	var paths []string
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		if p := strings.TrimSpace(strings.TrimPrefix(line, "- ")); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
