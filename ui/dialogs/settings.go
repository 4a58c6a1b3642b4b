// Package dialogs provides application dialogs.
package dialogs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"titerscope/internal/doseresponse"
	"titerscope/internal/project"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
)

// Fields holds the editable experiment settings as entered text.
type Fields struct {
	Width     string
	Offset    string
	Gamma     string
	Sigma     string
	Tolerance string
	Ext       string

	Param  string
	Cutoff string
	Auto   bool

	GroupBy string
	Link    string
	Target  string
	Level   string
	Workers string
}

// FieldsFrom formats the current settings of f.
func FieldsFrom(f *project.File) Fields {
	seg := f.Segmentation
	return Fields{
		Width:     strconv.Itoa(seg.Width),
		Offset:    formatFloat(seg.Offset),
		Gamma:     formatFloat(seg.Gamma),
		Sigma:     formatFloat(seg.Sigma),
		Tolerance: formatFloat(seg.Tolerance),
		Ext:       strconv.Itoa(seg.Ext),
		Param:     f.Classification.Param,
		Cutoff:    formatFloat(f.Classification.Cutoff),
		Auto:      f.Classification.Auto,
		GroupBy:   f.Tally.GroupBy,
		Link:      f.Fit.Link.String(),
		Target:    formatFloat(f.Fit.Target),
		Level:     formatFloat(f.Fit.Confidence),
		Workers:   strconv.Itoa(f.Output.Workers),
	}
}

// Apply parses fields into f. Nothing is written unless every field parses
// and the resulting settings validate.
func (fl Fields) Apply(f *project.File) error {
	var errs []error
	parseFloat := func(name, s string) float64 {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a number", name, s))
		}
		return v
	}
	parseInt := func(name, s string) int {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not an integer", name, s))
		}
		return v
	}

	seg := f.Segmentation
	seg.Width = parseInt("width", fl.Width)
	seg.Offset = parseFloat("offset", fl.Offset)
	seg.Gamma = parseFloat("gamma", fl.Gamma)
	seg.Sigma = parseFloat("sigma", fl.Sigma)
	seg.Tolerance = parseFloat("tolerance", fl.Tolerance)
	seg.Ext = parseInt("ext", fl.Ext)

	rule := f.Classification
	rule.Param = strings.TrimSpace(fl.Param)
	rule.Auto = fl.Auto
	if !fl.Auto {
		rule.Cutoff = parseFloat("cutoff", fl.Cutoff)
	}

	fit := f.Fit
	link, err := doseresponse.ParseLink(fl.Link)
	if err != nil {
		errs = append(errs, err)
	}
	fit.Link = link
	fit.Target = parseFloat("target", fl.Target)
	fit.Confidence = parseFloat("confidence", fl.Level)

	workers := parseInt("workers", fl.Workers)
	if workers < 0 {
		errs = append(errs, fmt.Errorf("workers: must not be negative"))
	}
	if rule.Param == "" {
		errs = append(errs, fmt.Errorf("phenotype column: must not be empty"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if err := seg.Validate(); err != nil {
		return err
	}
	if err := fit.Validate(); err != nil {
		return err
	}

	f.Segmentation = seg
	f.Classification = rule
	f.Fit = fit
	f.Output.Workers = workers
	f.Tally = f.Tally.WithGroupBy(strings.TrimSpace(fl.GroupBy))
	f.Tally.Param = rule.Param
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// SettingsDialog provides a property sheet for editing experiment settings.
type SettingsDialog struct {
	file   *project.File
	window fyne.Window

	// Segmentation
	widthEntry     *widget.Entry
	offsetEntry    *widget.Entry
	gammaEntry     *widget.Entry
	sigmaEntry     *widget.Entry
	toleranceEntry *widget.Entry
	extEntry       *widget.Entry

	// Classification
	paramEntry  *widget.Entry
	cutoffEntry *widget.Entry
	autoCheck   *widget.Check

	// Fit
	groupEntry   *widget.Entry
	linkSelect   *widget.Select
	targetEntry  *widget.Entry
	levelEntry   *widget.Entry
	workersEntry *widget.Entry

	onSave func(*project.File)
}

// NewSettingsDialog creates a new settings dialog for f.
func NewSettingsDialog(f *project.File, window fyne.Window, onSave func(*project.File)) *SettingsDialog {
	return &SettingsDialog{
		file:   f,
		window: window,
		onSave: onSave,
	}
}

// Show displays the dialog.
func (d *SettingsDialog) Show() {
	content := d.createContent()

	dlg := dialog.NewCustomConfirm(
		"Settings: "+d.file.Name,
		"Save",
		"Cancel",
		container.NewVScroll(content),
		func(save bool) {
			if !save {
				return
			}
			if err := d.fields().Apply(d.file); err != nil {
				dialog.ShowError(err, d.window)
				return
			}
			if d.onSave != nil {
				d.onSave(d.file)
			}
		},
		d.window,
	)
	dlg.Resize(fyne.NewSize(460, 640))
	dlg.Show()
}

func newEntry(text string) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(text)
	return e
}

func (d *SettingsDialog) createContent() fyne.CanvasObject {
	cur := FieldsFrom(d.file)

	d.widthEntry = newEntry(cur.Width)
	d.offsetEntry = newEntry(cur.Offset)
	d.gammaEntry = newEntry(cur.Gamma)
	d.sigmaEntry = newEntry(cur.Sigma)
	d.toleranceEntry = newEntry(cur.Tolerance)
	d.extEntry = newEntry(cur.Ext)

	segForm := widget.NewForm(
		widget.NewFormItem("Nucleus width (px)", d.widthEntry),
		widget.NewFormItem("Threshold offset", d.offsetEntry),
		widget.NewFormItem("Gamma", d.gammaEntry),
		widget.NewFormItem("Smoothing sigma", d.sigmaEntry),
		widget.NewFormItem("Watershed tolerance", d.toleranceEntry),
		widget.NewFormItem("Watershed ext (px)", d.extEntry),
	)

	d.paramEntry = newEntry(cur.Param)
	d.cutoffEntry = newEntry(cur.Cutoff)
	d.autoCheck = widget.NewCheck("Otsu cutoff per image", func(on bool) {
		if on {
			d.cutoffEntry.Disable()
		} else {
			d.cutoffEntry.Enable()
		}
	})
	d.autoCheck.SetChecked(cur.Auto)

	classForm := widget.NewForm(
		widget.NewFormItem("Phenotype column", d.paramEntry),
		widget.NewFormItem("Cutoff", d.cutoffEntry),
		widget.NewFormItem("", d.autoCheck),
	)

	d.groupEntry = newEntry(cur.GroupBy)
	d.linkSelect = widget.NewSelect([]string{doseresponse.CLogLog.String(), doseresponse.Logit.String()}, nil)
	d.linkSelect.SetSelected(cur.Link)
	d.targetEntry = newEntry(cur.Target)
	d.levelEntry = newEntry(cur.Level)
	d.workersEntry = newEntry(cur.Workers)

	fitForm := widget.NewForm(
		widget.NewFormItem("Group by", d.groupEntry),
		widget.NewFormItem("Link", d.linkSelect),
		widget.NewFormItem("Target fraction", d.targetEntry),
		widget.NewFormItem("Confidence", d.levelEntry),
		widget.NewFormItem("Workers (0 = all CPUs)", d.workersEntry),
	)

	return container.NewVBox(
		widget.NewCard("Segmentation", "", segForm),
		widget.NewCard("Classification", "", classForm),
		widget.NewCard("Dose Response", "", fitForm),
	)
}

func (d *SettingsDialog) fields() Fields {
	return Fields{
		Width:     d.widthEntry.Text,
		Offset:    d.offsetEntry.Text,
		Gamma:     d.gammaEntry.Text,
		Sigma:     d.sigmaEntry.Text,
		Tolerance: d.toleranceEntry.Text,
		Ext:       d.extEntry.Text,
		Param:     d.paramEntry.Text,
		Cutoff:    d.cutoffEntry.Text,
		Auto:      d.autoCheck.Checked,
		GroupBy:   d.groupEntry.Text,
		Link:      d.linkSelect.Selected,
		Target:    d.targetEntry.Text,
		Level:     d.levelEntry.Text,
		Workers:   d.workersEntry.Text,
	}
}
