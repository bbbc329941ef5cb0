package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/knipferrc/teacup/code"

	"github.com/noelzubin/notes_browser/editor"
	"github.com/noelzubin/notes_browser/search"
	"github.com/noelzubin/notes_browser/syncer"
	"github.com/noelzubin/notes_browser/watcher"
)

var (
	ListStyle   = lipgloss.NewStyle().MarginTop(1)
	StatusStyle = lipgloss.NewStyle().MarginLeft(2).Foreground(lipgloss.Color("241"))
)

const (
	indexingPlaceholder = "indexing…"
	queryPlaceholder    = "query"
)

// Main app model for bubbletea
type Model struct {
	width       int             // width of terminal
	height      int             // height of terminal
	preview     *code.Bubble    // the preview widget model
	previewPath string          // note shown in the preview
	list        list.Model      // the list widget model
	textInput   textinput.Model // the input search widget model
	app         *app            // store, index and sync controller
	editor      editor.Editor   // for opening up external editor.
	editingPath string          // note open in the editor
	ready       bool            // the index has been built
	status      string          // last error or notice
}

// This is emitted when a search finishes.
type ResultMsg struct {
	Query string
	search.SearchResult
}

// Emitted once the notes are loaded and indexed.
type readyMsg struct{ err error }

// Emitted by the sync controller for every note change.
type changeMsg struct{ syncer.Change }

// Emitted when the watcher reports an error; events may have been lost.
type watchErrMsg struct{ err error }

// Emitted when the sync controller stops.
type syncFailedMsg struct{ err error }

type reconciledMsg struct {
	applied int
	err     error
}

type refreshedMsg struct{ err error }

// Create a new model for the app
func New(a *app) *Model {
	return &Model{
		list:      create_list_model(),
		textInput: create_text_input(),
		app:       a,
		editor:    editor.Editor{Editing: false, EditorCmd: a.config.Editor},
	}
}

func (m *Model) setListSize() {
	width := m.width

	// If preview is open take half width
	if m.preview != nil {
		width = m.width / 2
	}

	m.list.SetSize(width, m.height-3)
}

func (m *Model) setPreviewSize() {
	if m.preview != nil {
		m.preview.SetSize(m.width/2, m.height-2)
	}
}

func (m *Model) updateSize(width, height int) {
	m.height = height
	m.width = width
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tea.EnterAltScreen, m.bootstrap())
}

func (m Model) bootstrap() tea.Cmd {
	ctrl := m.app.ctrl
	return func() tea.Msg {
		return readyMsg{err: ctrl.Bootstrap(context.Background())}
	}
}

func (m Model) search(query string) tea.Cmd {
	engine := m.app.engine
	return func() tea.Msg {
		hits, err := engine.Search(context.Background(), query)
		return ResultMsg{Query: query, SearchResult: search.SearchResult{Err: err, Hits: hits}}
	}
}

func (m Model) reconcile() tea.Cmd {
	ctrl := m.app.ctrl
	return func() tea.Msg {
		applied, err := ctrl.Reconcile(context.Background())
		return reconciledMsg{applied: applied, err: err}
	}
}

// refresh re-reads a note in case the watcher missed the change.
func (m Model) refresh(path string) tea.Cmd {
	ctrl := m.app.ctrl
	return func() tea.Msg {
		return refreshedMsg{err: ctrl.Apply(watcher.Event{Kind: watcher.Modified, Path: path})}
	}
}

func (m *Model) query() string {
	return strings.TrimSpace(m.textInput.Value())
}

// showCurrent shows the listing for an empty query and the results of
// the query otherwise.
func (m *Model) showCurrent() tea.Cmd {
	if !m.ready {
		return nil
	}
	if m.query() == "" {
		return m.list.SetItems(listingItems(m.app.store))
	}
	return m.search(m.query())
}

func (m *Model) openPreview(path string) tea.Cmd {
	codeModel := code.New(false, true, lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"})
	codeModel.SetSize(m.width/2, m.height-2)
	m.preview = &codeModel
	m.previewPath = path
	return codeModel.SetFileName(m.fullPath(path))
}

func (m *Model) fullPath(path string) string {
	return filepath.Join(m.app.store.Root(), filepath.FromSlash(path))
}

func (m *Model) selected() (Note, bool) {
	note, ok := m.list.SelectedItem().(Note)
	return note, ok
}

// The update fn for the bubbletea model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case readyMsg:
		if msg.err != nil {
			slog.Error("bootstrap_failed", slog.String("error", msg.err.Error()))
			m.status = "indexing failed: " + msg.err.Error()
			break
		}
		m.ready = true
		m.textInput.Placeholder = queryPlaceholder
		cmds = append(cmds, m.textInput.Focus(), m.showCurrent())
	case ResultMsg:
		// Results of an outdated query.
		if msg.Query != m.query() {
			break
		}
		if msg.Err != nil {
			m.status = msg.Err.Error()
			break
		}
		m.status = ""
		cmds = append(cmds, m.list.SetItems(resultItems(msg.Hits)))
	case changeMsg:
		if msg.TitleChanged() {
			slog.Debug("title_changed", slog.String("path", msg.Path), slog.String("title", msg.Title))
		}
		cmds = append(cmds, m.showCurrent())
		if m.preview != nil && msg.Path == m.previewPath {
			if msg.Kind == syncer.ChangeRemoved {
				m.preview = nil
			} else {
				cmds = append(cmds, m.preview.SetFileName(m.fullPath(msg.Path)))
			}
		}
	case watchErrMsg:
		m.status = "watch error, rescanning: " + msg.err.Error()
		cmds = append(cmds, m.reconcile())
	case syncFailedMsg:
		m.status = "live updates stopped: " + msg.err.Error()
	case reconciledMsg:
		if msg.err != nil {
			m.status = "rescan failed: " + msg.err.Error()
		} else if msg.applied > 0 {
			cmds = append(cmds, m.showCurrent())
		}
	case refreshedMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
		}
	case tea.KeyMsg:
		// Keybindings:
		// Tab - move down in the list
		// Shift+Tab - move up in the list
		// Enter - preview the selected note
		// Esc - close preview
		// Ctrl+R - rescan the notes directory
		// Ctrl+K - Preview line up
		// Ctrl+J - Preview line down
		// Ctrl+O - Open the note in the editor
		// Ctrl+C - quit the application
		switch msg.String() {
		case "tab":
			m.list.CursorDown()
		case "shift+tab":
			m.list.CursorUp()
		case "enter":
			if note, ok := m.selected(); ok {
				cmds = append(cmds, m.openPreview(note.path))
			}
		case "esc":
			m.preview = nil
		case "ctrl+c":
			return m, tea.Quit
		case "ctrl+r":
			if m.ready {
				cmds = append(cmds, m.reconcile())
			}
		case "ctrl+k":
			if m.preview != nil {
				m.preview.Viewport.LineUp(5)
			}
		case "ctrl+j":
			if m.preview != nil {
				m.preview.Viewport.LineDown(5)
			}
		case "ctrl+o":
			if note, ok := m.selected(); ok {
				m.editingPath = note.path
				cmds = append(cmds, m.editor.EditFile(m.fullPath(note.path)))
			}
		}
	case editor.EditingFinished:
		if msg.Err != nil {
			m.status = "editor: " + msg.Err.Error()
		}
		if m.ready && m.editingPath != "" {
			cmds = append(cmds, m.refresh(m.editingPath))
		}
		m.editingPath = ""
	case tea.WindowSizeMsg:
		m.updateSize(msg.Width, msg.Height)
	}

	// Update the widgets sizes
	m.setListSize()
	m.setPreviewSize()

	// save to compare if changed
	oldValue := m.query()

	// pass on message to the other components
	if m.ready {
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.editor, cmd = m.editor.Update(msg)
	cmds = append(cmds, cmd)

	if m.preview != nil {
		var newPreview code.Bubble
		newPreview, cmd = m.preview.Update(msg)
		cmds = append(cmds, cmd)
		m.preview = &newPreview
	}

	// If input has changed, show what matches the new value
	if oldValue != m.query() {
		cmds = append(cmds, m.showCurrent())
	}

	return m, tea.Batch(cmds...)
}

// View fn for bubbletea model
func (m Model) View() string {
	listContent := ListStyle.Render(m.list.View())

	// render list
	innerContent := listContent

	// if preview then preview takes up half the width
	if m.preview != nil {
		innerContent = lipgloss.JoinHorizontal(lipgloss.Left,
			listContent,      // render list
			m.preview.View(), // render preview.
		)
	}

	// render the input box, the status and the content
	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.textInput.View(),
		StatusStyle.Render(m.status),
		innerContent,
	)
}

// Create the list model
func create_list_model() list.Model {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.SetShowFilter(false)
	l.SetShowHelp(false)
	l.SetShowTitle(false)
	l.Styles.NoItems = l.Styles.NoItems.Copy().PaddingLeft(2)
	return l
}

// Create the text input model, blurred until the index is ready
func create_text_input() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = indexingPlaceholder
	ti.Prompt = "Search:"
	ti.PromptStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("62")).
		Foreground(lipgloss.Color("230")).
		MarginRight(1).
		MarginLeft(2).
		Padding(0, 1)
	return ti
}
