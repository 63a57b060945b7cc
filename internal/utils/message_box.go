package utils

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// MessageType defines the type of message box to render.
type MessageType int

const (
	// InfoMessage represents an informational message.
	InfoMessage MessageType = iota
	// SuccessMessage represents a success message.
	SuccessMessage
	// WarningMessage represents a warning message.
	WarningMessage
	// ErrorMessage represents an error message.
	ErrorMessage
)

const (
	topLeft     = "╭"
	topRight    = "╮"
	bottomLeft  = "╰"
	bottomRight = "╯"
	horizontal  = "─"
	vertical    = "│"
)

var styles = map[MessageType]struct {
	style  lipgloss.Style
	prefix string
}{
	InfoMessage:    {lipgloss.NewStyle().Foreground(lipgloss.Color("86")), "ℹ"},
	SuccessMessage: {lipgloss.NewStyle().Foreground(lipgloss.Color("42")), "✓"},
	WarningMessage: {lipgloss.NewStyle().Foreground(lipgloss.Color("178")), "⚠"},
	ErrorMessage:   {lipgloss.NewStyle().Foreground(lipgloss.Color("196")), "✗"},
}

// Box is a builder for creating formatted message boxes.
type Box struct {
	messageType MessageType
	title       string
	content     []string
	width       int
}

// NewBox creates a new message box sized to the terminal.
func NewBox(messageType MessageType, title string) *Box {
	return &Box{
		messageType: messageType,
		title:       title,
		width:       terminalWidth() - 8,
	}
}

// WithWidth overrides the maximum box width.
func (b *Box) WithWidth(width int) *Box {
	b.width = width
	return b
}

// AddLine adds a line of text to the message box content.
func (b *Box) AddLine(text string) *Box {
	b.content = append(b.content, text)
	return b
}

// AddKeyValue adds a "key: value" line.
func (b *Box) AddKeyValue(key string, value interface{}) *Box {
	b.content = append(b.content, fmt.Sprintf("%s: %v", key, value))
	return b
}

// Render builds and returns the formatted message box as a string.
func (b *Box) Render() string {
	s, ok := styles[b.messageType]
	if !ok {
		s = styles[InfoMessage]
	}
	style, prefix := s.style, s.prefix

	contentWidth := b.width - 6
	if contentWidth < 10 {
		contentWidth = 10
	}

	var lines []string
	for _, line := range append([]string{b.title}, b.content...) {
		if utf8.RuneCountInString(line) <= contentWidth {
			lines = append(lines, line)
		} else {
			lines = append(lines, wrapText(line, contentWidth)...)
		}
	}

	boxWidth := 6
	for _, line := range lines {
		if n := utf8.RuneCountInString(line) + 6; n > boxWidth {
			boxWidth = n
		}
	}

	var sb strings.Builder
	sb.WriteString(style.Render(topLeft+strings.Repeat(horizontal, boxWidth-2)+topRight) + "\n")

	for i, line := range lines {
		lead := "  "
		if i == 0 {
			lead = style.Bold(true).Render(prefix) + " "
		}
		padding := boxWidth - utf8.RuneCountInString(line) - 6
		if padding < 0 {
			padding = 0
		}
		sb.WriteString(fmt.Sprintf("%s %s%s%s %s\n",
			style.Render(vertical), lead, line, strings.Repeat(" ", padding), style.Render(vertical)))
	}

	sb.WriteString(style.Render(bottomLeft + strings.Repeat(horizontal, boxWidth-2) + bottomRight))
	return sb.String()
}

// terminalWidth returns the terminal width or 80 when stdout is not a terminal.
func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// wrapText wraps text on word boundaries to fit within maxWidth.
func wrapText(text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	current := words[0]
	width := utf8.RuneCountInString(current)

	for _, word := range words[1:] {
		n := utf8.RuneCountInString(word)
		if width+n+1 <= maxWidth {
			current += " " + word
			width += n + 1
			continue
		}
		lines = append(lines, current)
		current = word
		width = n
	}
	return append(lines, current)
}
