package wizard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/robertguss/rxflow-go/internal/domain"
	"github.com/robertguss/rxflow-go/internal/theme"
	"github.com/robertguss/rxflow-go/internal/util"
	"github.com/robertguss/rxflow-go/internal/workflow"
)

const (
	sidebarWidth = 30
	progressBar  = 20
	listRows     = 8
)

// View renders the wizard view
func (m Model) View() string {
	sidebar := lipgloss.NewStyle().
		Width(sidebarWidth).
		Render(m.renderSteps())

	body := lipgloss.NewStyle().
		Width(max(m.width-sidebarWidth-4, 20)).
		PaddingLeft(2).
		Render(m.renderBody())

	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, body)
}

func (m Model) renderSteps() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("New Prescription"))
	b.WriteString("\n")
	if m.draft != nil && m.draft.RxNumber != "" {
		b.WriteString(m.styles.Muted.Render("Rx " + m.draft.RxNumber))
	}
	b.WriteString("\n\n")

	for i, step := range m.steps {
		badge, label := m.stepBadge(step)
		fmt.Fprintf(&b, "%s %s %s\n",
			badge,
			label.Render(util.Truncate(step.Label, sidebarWidth-12)),
			m.styles.Shortcut.Render(fmt.Sprintf("M-%d", i+1)))
	}

	b.WriteString("\n")
	b.WriteString(renderProgress(m.progress))
	return b.String()
}

func (m Model) stepBadge(step workflow.Step) (string, lipgloss.Style) {
	switch {
	case step.Key == m.current:
		return m.styles.BadgeCurrent.Render("▶"), m.styles.Selected
	case m.completed[step.Key]:
		return m.styles.BadgeComplete.Render("✓"), m.styles.Unselected
	case m.enterable[step.Key]:
		return m.styles.BadgeOpen.Render("○"), m.styles.Unselected
	default:
		return m.styles.BadgeLocked.Render("✕"), m.styles.Muted
	}
}

func renderProgress(p workflow.Progress) string {
	t := theme.Current

	filled := 0
	if p.Total > 0 {
		filled = p.Completed * progressBar / p.Total
	}
	bar := lipgloss.NewStyle().Foreground(t.Success).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(t.Subtle).Render(strings.Repeat("░", progressBar-filled))

	return fmt.Sprintf("%s %d%% (%d/%d)", bar, p.Percentage, p.Completed, p.Total)
}

func (m Model) renderBody() string {
	var content, help string

	switch m.current {
	case workflow.StepPatient:
		content = m.renderPatient()
		help = "type to search | ↑/↓ select | Enter attach"
	case workflow.StepPrescriber:
		content = m.renderPrescriber()
		help = "Enter look up"
	case workflow.StepMedications:
		content = m.renderMedications()
		help = "↑/↓ pick | Enter next field | Esc back | Ctrl+D remove last"
	case workflow.StepReview:
		content = m.renderReview()
		help = "PgUp/PgDn scroll | Ctrl+X submit"
	default:
		return m.styles.Muted.Render("Waiting for a draft...")
	}

	var b strings.Builder
	b.WriteString(content)
	b.WriteString("\n\n")
	if m.err != "" {
		b.WriteString(m.styles.Error.Render(m.err))
		b.WriteString("\n")
	}
	b.WriteString(m.styles.Muted.Render(help + " | Tab/Shift+Tab step | Ctrl+P commands"))
	return b.String()
}

func (m Model) renderPatient() string {
	var b strings.Builder
	b.WriteString(m.styles.Subtitle.Render("Patient Information"))
	b.WriteString("\n\n")

	if m.draft.HasPatient() {
		fmt.Fprintf(&b, "Attached: %s\n\n", m.styles.Success.Render(describePatient(*m.draft.Patient)))
	}

	b.WriteString(m.search.View())
	b.WriteString("\n\n")

	if len(m.patients) == 0 {
		if strings.TrimSpace(m.search.Value()) != "" {
			b.WriteString(m.styles.Muted.Render("No matching patients"))
		}
		return b.String()
	}

	start := window(m.patientCursor, len(m.patients), listRows)
	for i := start; i < len(m.patients) && i < start+listRows; i++ {
		line := describePatient(m.patients[i])
		if i == m.patientCursor {
			b.WriteString(m.styles.Selected.Render("> " + line))
		} else {
			b.WriteString(m.styles.Unselected.Render("  " + line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderPrescriber() string {
	var b strings.Builder
	b.WriteString(m.styles.Subtitle.Render("Prescriber Details"))
	b.WriteString("\n\n")

	if m.draft.HasPrescriber() {
		fmt.Fprintf(&b, "Attached: %s\n\n", m.styles.Success.Render(describePrescriber(*m.draft.Prescriber)))
	}
	b.WriteString(m.prescriber.View())
	return b.String()
}

func (m Model) renderMedications() string {
	var b strings.Builder
	b.WriteString(m.styles.Subtitle.Render("Medications"))
	b.WriteString("\n\n")

	if m.draft.MedicationCount() == 0 {
		b.WriteString(m.styles.Muted.Render("No medications on this prescription"))
		b.WriteString("\n")
	}
	for i, item := range m.draftItems() {
		fmt.Fprintf(&b, "%d. %s\n", i+1, describeItem(item))
	}
	b.WriteString("\n")

	if len(m.catalogue) == 0 {
		b.WriteString(m.styles.Muted.Render("Loading catalogue..."))
		return b.String()
	}

	start := window(m.medCursor, len(m.catalogue), listRows)
	for i := start; i < len(m.catalogue) && i < start+listRows; i++ {
		line := describeMedication(m.catalogue[i])
		switch {
		case i == m.medCursor && m.medFocus == medFocusCatalogue:
			b.WriteString(m.styles.Selected.Render("> " + line))
		case i == m.medCursor:
			b.WriteString(m.styles.Highlight.Render("* " + line))
		default:
			b.WriteString(m.styles.Unselected.Render("  " + line))
		}
		b.WriteString("\n")
	}

	if m.medFocus != medFocusCatalogue {
		b.WriteString("\n")
		for _, input := range m.medInputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) renderReview() string {
	var b strings.Builder
	b.WriteString(m.styles.Subtitle.Render("Review & Submit"))
	b.WriteString("\n\n")
	b.WriteString(m.styles.BorderedBox.Render(m.summary.View()))
	b.WriteString("\n\n")
	b.WriteString(m.notes.View())
	return b.String()
}

// renderSummary builds the review text shown in the summary viewport
func (m Model) renderSummary() string {
	d := m.draft
	if d == nil {
		return "No draft"
	}

	var b strings.Builder
	if d.RxNumber != "" {
		fmt.Fprintf(&b, "Rx number:   %s\n", d.RxNumber)
	}
	fmt.Fprintf(&b, "Status:      %s\n", d.Status)

	b.WriteString("Patient:     ")
	if d.HasPatient() {
		b.WriteString(describePatient(*d.Patient))
	} else {
		b.WriteString("missing")
	}
	b.WriteString("\nPrescriber:  ")
	if d.HasPrescriber() {
		b.WriteString(describePrescriber(*d.Prescriber))
	} else {
		b.WriteString("missing")
	}

	b.WriteString("\n\nMedications:\n")
	if d.MedicationCount() == 0 {
		b.WriteString("  none\n")
	}
	for i, item := range d.Medications {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, describeItem(item))
	}

	if d.Notes != "" {
		fmt.Fprintf(&b, "\nNotes: %s\n", d.Notes)
	}

	var missing []string
	for _, step := range m.steps {
		if step.Required && !m.completed[step.Key] {
			missing = append(missing, step.Label)
		}
	}
	if len(missing) > 0 {
		fmt.Fprintf(&b, "\nIncomplete: %s\n", strings.Join(missing, ", "))
	} else {
		b.WriteString("\nReady to submit\n")
	}
	return b.String()
}

func (m Model) draftItems() []domain.PrescriptionItem {
	if m.draft == nil {
		return nil
	}
	return m.draft.Medications
}

// window returns the first visible row so cursor stays inside a list of rows lines
func window(cursor, total, rows int) int {
	if total <= rows || cursor < rows/2 {
		return 0
	}
	return min(cursor-rows/2, total-rows)
}

func describePatient(p domain.Patient) string {
	s := p.Contact.FullName()
	if p.DateOfBirth != "" {
		s += "  DOB " + p.DateOfBirth
	}
	return fmt.Sprintf("%s  #%d", s, p.ID)
}

func describePrescriber(p domain.Prescriber) string {
	return fmt.Sprintf("%s  NPI %s", p.Contact.FullName(), p.NPI)
}

func describeMedication(med domain.Medication) string {
	if med.GenericName != "" && med.GenericName != med.Name {
		return fmt.Sprintf("%s (%s)", med.Name, med.GenericName)
	}
	return med.Name
}

func describeItem(item domain.PrescriptionItem) string {
	name := item.Name
	if name == "" {
		name = fmt.Sprintf("medication #%d", item.MedicationID)
	}
	return fmt.Sprintf("%s  qty %g  %s  refills %d", name, item.Quantity, item.Sig, item.Refills)
}
