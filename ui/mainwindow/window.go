// Package mainwindow provides the viewer window.
package mainwindow

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strconv"

	"titerscope/internal/app"
	tsimage "titerscope/internal/image"
	"titerscope/internal/pipeline"
	"titerscope/internal/plot"
	"titerscope/internal/project"
	"titerscope/internal/version"
	imgcanvas "titerscope/ui/canvas"
	"titerscope/ui/dialogs"
	"titerscope/ui/prefs"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
)

const (
	titleBase    = "titerscope"
	projectExt   = ".json"
	defaultNuc   = "_dapi.tif"
	defaultTgt   = "_gfp.tif"
	defaultAlpha = 0.35
)

// MainWindow is the primary application window.
type MainWindow struct {
	fyne.Window
	app   fyne.App
	state *app.State
	prefs *prefs.Prefs

	pairList  *widget.List
	overlay   *imgcanvas.ImageCanvas
	chart     *canvas.Image
	rows      *widget.Table
	summary   *widget.Label
	statusBar *widget.Label
	runButton *widget.Button

	selected int
}

// New creates a new main window.
func New(fyneApp fyne.App, state *app.State, p *prefs.Prefs) *MainWindow {
	win := fyneApp.NewWindow(titleBase)

	mw := &MainWindow{
		Window:   win,
		app:      fyneApp,
		state:    state,
		prefs:    p,
		selected: -1,
	}

	mw.setupUI()
	mw.setupMenus()
	mw.setupEventHandlers()
	mw.Resize(fyne.NewSize(1200, 800))

	return mw
}

// setupUI creates the main UI layout.
func (mw *MainWindow) setupUI() {
	mw.statusBar = widget.NewLabel("Ready")
	mw.summary = widget.NewLabel("No results")
	mw.summary.Wrapping = fyne.TextWrapWord

	mw.pairList = widget.NewList(
		func() int { return len(mw.state.Project.Pairs) },
		func() fyne.CanvasObject { return widget.NewLabel("group") },
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			pair := mw.state.Project.Pairs[id]
			obj.(*widget.Label).SetText(fmt.Sprintf("%s  %s", pair.Group, filepath.Base(pair.Nuclear)))
		},
	)
	mw.pairList.OnSelected = func(id widget.ListItemID) {
		mw.selected = id
		mw.showOverlay()
	}

	mw.overlay = imgcanvas.NewImageCanvas()
	mw.overlay.SetFitToWindow(true)
	mw.overlay.OnLeftClick(mw.onOverlayClick)
	mw.overlay.OnZoomChange(func(zoom float64) {
		mw.updateStatus(fmt.Sprintf("Zoom %.0f%%", zoom*100))
	})
	mw.chart = canvas.NewImageFromImage(nil)
	mw.chart.FillMode = canvas.ImageFillContain

	mw.rows = widget.NewTable(
		func() (int, int) {
			if mw.state.Result == nil {
				return 0, 0
			}
			return len(mw.state.Result.Aggregate.Rows) + 1, 5
		},
		func() fyne.CanvasObject { return widget.NewLabel("0000000000") },
		mw.updateCell,
	)

	numbers := widget.NewCheck("Label numbers", func(on bool) {
		mw.prefs.SetBool(prefs.KeyShowNumbers, on)
		mw.showOverlay()
	})
	numbers.SetChecked(mw.prefs.Bool(prefs.KeyShowNumbers, false))
	opacity := widget.NewSlider(0, 1)
	opacity.Step = 0.05
	opacity.SetValue(mw.prefs.FloatWithFallback(prefs.KeyOverlayAlpha, defaultAlpha))
	opacity.OnChangeEnded = func(v float64) {
		mw.prefs.SetFloat(prefs.KeyOverlayAlpha, v)
		mw.showOverlay()
	}

	fit := widget.NewButton("Fit", func() { mw.overlay.SetFitToWindow(true) })

	mw.runButton = widget.NewButton("Run", mw.onRun)
	toolbar := container.NewHBox(mw.runButton, widget.NewSeparator(), fit, numbers,
		widget.NewLabel("Fill:"), container.NewGridWrap(fyne.NewSize(160, 36), opacity))

	tabs := container.NewAppTabs(
		container.NewTabItem("Overlay", mw.overlay),
		container.NewTabItem("Fit", mw.chart),
		container.NewTabItem("Groups", mw.rows),
	)

	left := container.NewBorder(widget.NewLabel("Image pairs"), container.NewPadded(mw.summary), nil, nil, mw.pairList)
	split := container.NewHSplit(left, container.NewBorder(toolbar, nil, nil, nil, tabs))
	split.SetOffset(0.25)

	content := container.NewBorder(
		nil,
		container.NewPadded(mw.statusBar),
		nil,
		nil,
		split,
	)
	mw.SetContent(content)
}

// setupMenus creates the application menus.
func (mw *MainWindow) setupMenus() {
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("New Experiment", mw.onNewProject),
		fyne.NewMenuItem("Open Experiment...", mw.onOpenProject),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Discover Image Pairs...", mw.onDiscover),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Save Experiment", mw.onSaveProject),
		fyne.NewMenuItem("Save Experiment As...", mw.onSaveProjectAs),
	)

	recent := fyne.NewMenu("Recent")
	for _, path := range mw.prefs.Recent() {
		path := path
		recent.Items = append(recent.Items, fyne.NewMenuItem(filepath.Base(path), func() { mw.openProject(path) }))
	}

	runMenu := fyne.NewMenu("Run",
		fyne.NewMenuItem("Run Experiment", mw.onRun),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Settings...", mw.onSettings),
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mw.onAbout),
	)

	mw.SetMainMenu(fyne.NewMainMenu(fileMenu, recent, runMenu, helpMenu))
}

// setupEventHandlers registers for application events.
func (mw *MainWindow) setupEventHandlers() {
	mw.state.On(app.EventProjectLoaded, func(data interface{}) {
		if path, ok := data.(string); ok {
			mw.SetTitle(titleBase + " - " + filepath.Base(path))
			mw.prefs.AddRecent(path)
			mw.updateStatus("Experiment loaded: " + path)
		}
		mw.clearResults()
	})

	mw.state.On(app.EventProjectSaved, func(data interface{}) {
		if path, ok := data.(string); ok {
			mw.SetTitle(titleBase + " - " + filepath.Base(path))
			mw.prefs.AddRecent(path)
			mw.updateStatus("Saved " + path)
		}
	})

	mw.state.On(app.EventModified, func(data interface{}) {
		if modified, ok := data.(bool); ok && modified {
			title := mw.Title()
			if len(title) > 0 && title[len(title)-1] != '*' {
				mw.SetTitle(title + " *")
			}
		}
		mw.pairList.Refresh()
	})

	mw.state.On(app.EventRunStarted, func(data interface{}) {
		mw.runButton.Disable()
		mw.updateStatus(fmt.Sprintf("Processing %v image pairs...", data))
	})

	mw.state.On(app.EventRunFailed, func(data interface{}) {
		mw.runButton.Enable()
		if err, ok := data.(error); ok {
			mw.updateStatus("Run failed: " + err.Error())
			dialog.ShowError(err, mw.Window)
		}
	})

	mw.state.On(app.EventRunComplete, func(data interface{}) {
		mw.runButton.Enable()
		res, ok := data.(*pipeline.Result)
		if !ok {
			return
		}
		t := res.Titer
		mw.summary.SetText(fmt.Sprintf("Titer %.4g\n%.0f%% CI [%.4g, %.4g]\n%d objects in %d groups",
			t.Dose, mw.state.Project.Fit.Confidence*100, t.Lower, t.Upper,
			res.Classification.Len(), len(res.Aggregate.Rows)))
		mw.rows.Refresh()
		mw.showChart()
		if mw.selected < 0 && len(res.Images) > 0 {
			mw.pairList.Select(0)
		} else {
			mw.showOverlay()
		}
		mw.updateStatus(fmt.Sprintf("Done: titer %.4g", t.Dose))
	})
}

// onSettings edits the experiment's segmentation, classification and fit settings.
func (mw *MainWindow) onSettings() {
	if mw.state.Running() {
		dialog.ShowError(app.ErrBusy, mw.Window)
		return
	}
	dialogs.NewSettingsDialog(mw.state.Project, mw.Window, func(*project.File) {
		mw.state.SetModified(true)
		mw.updateStatus("Settings changed; run again to update results")
	}).Show()
}

// updateStatus updates the status bar text.
func (mw *MainWindow) updateStatus(text string) {
	mw.statusBar.SetText(text)
}

func (mw *MainWindow) clearResults() {
	mw.selected = -1
	mw.pairList.UnselectAll()
	mw.pairList.Refresh()
	mw.summary.SetText("No results")
	mw.overlay.SetImage(nil)
	mw.setImage(mw.chart, nil)
	mw.rows.Refresh()
}

func (mw *MainWindow) setImage(target *canvas.Image, img image.Image) {
	target.Image = img
	target.Refresh()
}

// showOverlay renders the selected pair's segmentation over its nuclear image.
func (mw *MainWindow) showOverlay() {
	res := mw.state.Result
	if res == nil || mw.selected < 0 || mw.selected >= len(res.Images) {
		mw.overlay.SetImage(nil)
		return
	}
	img := res.Images[mw.selected]
	opts := tsimage.DefaultOverlayOptions()
	opts.Opacity = mw.prefs.FloatWithFallback(prefs.KeyOverlayAlpha, defaultAlpha)
	opts.Numbers = mw.prefs.Bool(prefs.KeyShowNumbers, false)
	opts.Positive = img.PositiveLabels()
	mw.overlay.SetImage(tsimage.Overlay(img.Nuclear, img.Labels, opts))
}

// onOverlayClick reports the object under the cursor.
func (mw *MainWindow) onOverlayClick(x, y int) {
	res := mw.state.Result
	if res == nil || mw.selected < 0 || mw.selected >= len(res.Images) {
		return
	}
	img := res.Images[mw.selected]
	label := img.Labels.LabelAt(x, y)
	for i, obj := range img.Objects {
		if obj.Label != label {
			continue
		}
		class := "negative"
		if img.Positive[i] {
			class = "positive"
		}
		mw.updateStatus(fmt.Sprintf("(%d, %d) object %d: area %d, mean %.4g, %s",
			x, y, obj.Label, obj.Area, obj.Mean, class))
		return
	}
	mw.updateStatus(fmt.Sprintf("(%d, %d) background", x, y))
}

// showChart renders the dose-response fit.
func (mw *MainWindow) showChart() {
	res := mw.state.Result
	if res == nil {
		mw.setImage(mw.chart, nil)
		return
	}
	img, err := plot.Image(res.Fit, mw.state.Project.Plot)
	if err != nil {
		mw.updateStatus("Plot failed: " + err.Error())
		return
	}
	mw.setImage(mw.chart, img)
}

func (mw *MainWindow) updateCell(id widget.TableCellID, obj fyne.CanvasObject) {
	label := obj.(*widget.Label)
	res := mw.state.Result
	if res == nil {
		label.SetText("")
		return
	}
	if id.Row == 0 {
		header := []string{res.Aggregate.GroupKey, "x", "y", "pos", "neg"}
		label.TextStyle = fyne.TextStyle{Bold: true}
		label.SetText(header[id.Col])
		return
	}
	row := res.Aggregate.Rows[id.Row-1]
	label.TextStyle = fyne.TextStyle{}
	switch id.Col {
	case 0:
		label.SetText(row.Group)
	case 1:
		if row.HasX {
			label.SetText(strconv.FormatFloat(row.X, 'g', 4, 64))
		} else {
			label.SetText("NA")
		}
	case 2:
		label.SetText(strconv.FormatFloat(row.Y, 'f', 3, 64))
	case 3:
		label.SetText(strconv.Itoa(row.Pos))
	case 4:
		label.SetText(strconv.Itoa(row.Neg))
	}
}

// getLastDir returns the last used directory as a ListableURI, or nil.
func (mw *MainWindow) getLastDir() fyne.ListableURI {
	path := mw.prefs.String(prefs.KeyLastDir)
	if path == "" {
		return nil
	}
	listable, err := storage.ListerForURI(storage.NewFileURI(path))
	if err != nil {
		return nil
	}
	return listable
}

// saveLastDir saves the directory of the given file path.
func (mw *MainWindow) saveLastDir(filePath string) {
	mw.prefs.SetString(prefs.KeyLastDir, filepath.Dir(filePath))
}

// SavePreferences writes the viewer preferences to disk.
func (mw *MainWindow) SavePreferences() {
	if err := mw.prefs.Save(); err != nil {
		mw.updateStatus("Failed to save preferences: " + err.Error())
	}
}

// OpenProject loads an experiment and reports failures in a dialog.
func (mw *MainWindow) OpenProject(path string) {
	mw.openProject(path)
}

func (mw *MainWindow) openProject(path string) {
	mw.saveLastDir(path)
	if err := mw.state.LoadProject(path); err != nil {
		dialog.ShowError(err, mw.Window)
	}
}

// Menu action handlers

func (mw *MainWindow) onNewProject() {
	mw.state.NewProject()
	mw.SetTitle(titleBase + " - New Experiment")
	mw.clearResults()
}

func (mw *MainWindow) onOpenProject() {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		reader.Close()
		mw.openProject(reader.URI().Path())
	}, mw.Window)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{projectExt}))
	if loc := mw.getLastDir(); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

func (mw *MainWindow) onDiscover() {
	fd := dialog.NewFolderOpen(func(uri fyne.ListableURI, err error) {
		if err != nil || uri == nil {
			return
		}
		dir := uri.Path()
		mw.prefs.SetString(prefs.KeyLastDir, dir)
		nuc := mw.prefs.StringWithFallback(prefs.KeyNucSuffix, defaultNuc)
		tgt := mw.prefs.StringWithFallback(prefs.KeyTargetSuffix, defaultTgt)
		n, err := mw.state.DiscoverPairs(dir, nuc, tgt)
		if err != nil {
			dialog.ShowError(err, mw.Window)
			return
		}
		mw.updateStatus(fmt.Sprintf("Added %d image pairs from %s", n, dir))
	}, mw.Window)
	if loc := mw.getLastDir(); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

func (mw *MainWindow) onSaveProject() {
	if mw.state.ProjectPath == "" {
		mw.onSaveProjectAs()
		return
	}
	if err := mw.state.SaveProject(mw.state.ProjectPath); err != nil {
		dialog.ShowError(err, mw.Window)
	}
}

func (mw *MainWindow) onSaveProjectAs() {
	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		writer.Close()
		path := writer.URI().Path()
		if filepath.Ext(path) != projectExt {
			path += ".titer" + projectExt
		}
		mw.saveLastDir(path)
		if err := mw.state.SaveProject(path); err != nil {
			dialog.ShowError(err, mw.Window)
		}
	}, mw.Window)
	fd.SetFileName("experiment.titer" + projectExt)
	if loc := mw.getLastDir(); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

func (mw *MainWindow) onRun() {
	if mw.state.Running() {
		return
	}
	go func() {
		// Failures are reported through EventRunFailed.
		_, _ = mw.state.Run(context.Background())
	}()
}

func (mw *MainWindow) onAbout() {
	dialog.ShowInformation("About titerscope",
		fmt.Sprintf("titerscope v%s\n\n"+
			"Viral titer estimation from paired nuclear and\n"+
			"target-antigen fluorescence micrographs.\n\n"+
			"Built: %s\n"+
			"Commit: %s",
			version.Version, version.BuildTime, version.GitCommit),
		mw.Window)
}
