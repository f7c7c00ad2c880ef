package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"listsync/internal/models"
	"listsync/internal/syncagent"

	"gopkg.in/yaml.v3"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// listView is what every command prints for a list.
type listView struct {
	ID             uint       `json:"id" yaml:"id"`
	Slug           string     `json:"slug" yaml:"slug"`
	Title          string     `json:"title" yaml:"title"`
	Items          []itemView `json:"items" yaml:"items"`
	Viewers        []string   `json:"viewers,omitempty" yaml:"viewers,omitempty"`
	ActiveSessions int64      `json:"activeSessions,omitempty" yaml:"activeSessions,omitempty"`
}

type itemView struct {
	ID        uint   `json:"id" yaml:"id"`
	Text      string `json:"text" yaml:"text"`
	Completed bool   `json:"completed" yaml:"completed"`
	Color     string `json:"color,omitempty" yaml:"color,omitempty"`
}

func viewFromList(list *models.ListWithItems) listView {
	return listView{
		ID:             list.ID,
		Slug:           list.Slug,
		Title:          list.Title,
		Items:          itemViews(list.Items),
		ActiveSessions: list.ActiveSessions,
	}
}

func viewFromState(slug string, s *syncagent.ListState) listView {
	return listView{
		ID:      s.ListID,
		Slug:    slug,
		Title:   s.Title,
		Items:   itemViews(s.Items),
		Viewers: s.ParticipantIDs(),
	}
}

func itemViews(items []models.ListItem) []itemView {
	out := make([]itemView, 0, len(items))
	for _, it := range items {
		out = append(out, itemView{ID: it.ID, Text: it.Text, Completed: it.Completed, Color: it.Color})
	}
	return out
}

func validateOutput(format string) error {
	switch format {
	case outputText, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want %s, %s or %s)", format, outputText, outputJSON, outputYAML)
}

func render(w io.Writer, format string, v listView) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		// Each call is its own document so a stream of snapshots stays parseable
		if _, err := io.WriteString(w, "---\n"); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return renderText(w, v)
	}
}

func renderText(w io.Writer, v listView) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  (%s)\n", v.Title, v.Slug)
	if len(v.Items) == 0 {
		b.WriteString("  (no items)\n")
	}
	for _, it := range v.Items {
		mark := " "
		if it.Completed {
			mark = "x"
		}
		fmt.Fprintf(&b, "  [%s] %-5d %s\n", mark, it.ID, it.Text)
	}
	if len(v.Viewers) > 0 {
		fmt.Fprintf(&b, "  also here: %s\n", strings.Join(v.Viewers, ", "))
	}
	if v.ActiveSessions > 0 {
		fmt.Fprintf(&b, "  %d viewing\n", v.ActiveSessions)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
