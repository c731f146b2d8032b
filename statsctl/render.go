package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/rdsstats/stats/stats"
)

var (
	headerStyle       = lipgloss.NewStyle().Bold(true)
	disconnectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	objectStyle       = lipgloss.NewStyle().Underline(true)
	freshStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
)

const clearScreen = "\033[H\033[2J"

type TopOptions struct {
	// <= 0 shows every subject
	Top           int
	ObjectNeedle  string
	SubjectNeedle string
}

// Renders views of the aggregate. Rows whose cell changed within the freshness
// window are marked with `*`, and highlighted when writing to a terminal.
type Screen struct {
	Out             io.Writer
	Terminal        bool
	Width           int
	Url             string
	FreshnessWindow time.Duration
}

func (self *Screen) style(style lipgloss.Style, text string) string {
	if !self.Terminal {
		return text
	}
	if 0 < self.Width {
		style = style.MaxWidth(self.Width)
	}
	return style.Render(text)
}

func (self *Screen) header(b *strings.Builder, status stats.ConnectionStatus) {
	if self.Terminal {
		b.WriteString(clearScreen)
	}
	switch status.State {
	case stats.Open:
		line := fmt.Sprintf("stats %s open", self.Url)
		if status.Conn != nil {
			line = fmt.Sprintf("%s (%s)", line, status.Conn.Id())
		}
		b.WriteString(self.style(headerStyle, line))
	default:
		// the last known aggregate stays on screen until the next snapshot
		line := fmt.Sprintf("stats %s %s, showing last known stats", self.Url, status.State)
		b.WriteString(self.style(disconnectedStyle, line))
	}
	b.WriteString("\n")
}

func (self *Screen) row(b *strings.Builder, line string, fresh bool) {
	if fresh {
		b.WriteString(self.style(freshStyle, line+" *"))
	} else {
		b.WriteString(line)
	}
	b.WriteString("\n")
}

// top subjects per object, objects in first seen order
func (self *Screen) RenderTop(status stats.ConnectionStatus, aggregate stats.StatsAggregate, options TopOptions, now time.Time) {
	b := &strings.Builder{}
	self.header(b, status)

	top := stats.TopSubjectsByObject(aggregate)
	rendered := 0
	for _, object := range stats.FilterBySubstring(stats.SortedObjects(aggregate), options.ObjectNeedle) {
		subjectQuantities := []stats.SubjectQuantity{}
		for _, subjectQuantity := range top[object] {
			if strings.Contains(string(subjectQuantity.Subject), options.SubjectNeedle) {
				subjectQuantities = append(subjectQuantities, subjectQuantity)
			}
		}
		if len(subjectQuantities) == 0 {
			continue
		}
		if 0 < options.Top && options.Top < len(subjectQuantities) {
			subjectQuantities = subjectQuantities[:options.Top]
		}

		b.WriteString(self.style(objectStyle, stats.ObjectLabel(object)))
		b.WriteString("\n")
		for i, subjectQuantity := range subjectQuantities {
			cell, _ := aggregate.Cell(subjectQuantity.Subject, object)
			self.row(
				b,
				fmt.Sprintf("  %d. %s %d", i+1, subjectQuantity.Subject, subjectQuantity.Quantity),
				stats.IsRecentlyChanged(cell, now, self.FreshnessWindow),
			)
		}
		rendered += 1
	}
	if rendered == 0 {
		b.WriteString("  no stats\n")
	}

	io.WriteString(self.Out, b.String())
}

// every object of one subject
func (self *Screen) RenderSubject(status stats.ConnectionStatus, aggregate stats.StatsAggregate, subject stats.SubjectId, now time.Time) {
	b := &strings.Builder{}
	self.header(b, status)

	b.WriteString(self.style(objectStyle, string(subject)))
	b.WriteString("\n")
	objectQuantities := stats.ObjectsForSubject(aggregate, subject)
	for _, objectQuantity := range objectQuantities {
		cell, _ := aggregate.Cell(subject, objectQuantity.Object)
		self.row(
			b,
			fmt.Sprintf("  %s %d", stats.ObjectLabel(objectQuantity.Object), objectQuantity.Quantity),
			stats.IsRecentlyChanged(cell, now, self.FreshnessWindow),
		)
	}
	if len(objectQuantities) == 0 {
		b.WriteString("  no stats\n")
	}

	io.WriteString(self.Out, b.String())
}
