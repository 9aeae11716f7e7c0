// Package cli holds the interactive terminal surfaces: the registry
// browser shown by `octoface browse`.
package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/octofacehub/octoface/internal/model"
)

var (
	docStyle    = lipgloss.NewStyle().Margin(1, 2)
	detailStyle = lipgloss.NewStyle().Margin(1, 2).Border(lipgloss.RoundedBorder()).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Bold(true)
)

type modelItem struct {
	key   string
	entry model.IndexEntry
}

func (i modelItem) Title() string {
	return i.key
}

func (i modelItem) Description() string {
	desc := i.entry.Description
	if desc == "" {
		desc = "no description"
	}

	if len(i.entry.Tags) > 0 {
		desc = fmt.Sprintf("%s | %s", desc, strings.Join(i.entry.Tags, ", "))
	}

	return desc
}

func (i modelItem) FilterValue() string {
	return i.key + " " + strings.Join(i.entry.Tags, " ")
}

// BrowseModel is the bubbletea model behind `octoface browse`. Enter
// flips into a detail view with the CID, gateway URL and the download
// command; esc goes back to the list.
type BrowseModel struct {
	list       list.Model
	gatewayURL func(cid string) string
	selected   *modelItem
	quitting   bool
}

// NewBrowse builds the registry browser from a parsed index.
func NewBrowse(idx model.Index, gatewayURL func(cid string) string) BrowseModel {
	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	items := make([]list.Item, 0, len(keys))
	for _, k := range keys {
		items = append(items, modelItem{key: k, entry: idx[k]})
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = fmt.Sprintf("OctoFaceHub Registry (%d models)", len(items))
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)

	return BrowseModel{list: l, gatewayURL: gatewayURL}
}

func (m BrowseModel) Init() tea.Cmd {
	return nil
}

func (m BrowseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v)

		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true

			return m, tea.Quit

		case "esc":
			if m.selected != nil {
				m.selected = nil

				return m, nil
			}

			m.quitting = true

			return m, tea.Quit

		case "enter":
			if m.selected == nil {
				if i, ok := m.list.SelectedItem().(modelItem); ok {
					m.selected = &i
				}

				return m, nil
			}
		}
	}

	if m.selected != nil {
		return m, nil
	}

	var cmd tea.Cmd

	m.list, cmd = m.list.Update(msg)

	return m, cmd
}

func (m BrowseModel) View() string {
	if m.quitting {
		return ""
	}

	if m.selected != nil {
		return detailStyle.Render(m.detailView(*m.selected))
	}

	return docStyle.Render(m.list.View())
}

func (m BrowseModel) detailView(item modelItem) string {
	e := item.entry

	var b strings.Builder

	fmt.Fprintf(&b, "%s\n\n", labelStyle.Render(item.key))

	if e.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", e.Description)
	}

	fmt.Fprintf(&b, "%s @%s\n", labelStyle.Render("Owner:"), e.Owner)

	if len(e.Tags) > 0 {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Tags:"), strings.Join(e.Tags, ", "))
	}

	if e.UpdatedAt != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Updated:"), e.UpdatedAt)
	}

	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("CID:"), e.CID)
	fmt.Fprintf(&b, "%s %s\n\n", labelStyle.Render("Gateway:"), m.gatewayURL(e.CID))
	fmt.Fprintf(&b, "Download: w3 get %s -o %s\n\n", e.CID, e.Name)
	fmt.Fprintf(&b, "(esc to go back, q to quit)")

	return b.String()
}
