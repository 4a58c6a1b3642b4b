// Package main provides the entry point for the titerscope viewer.
package main

import (
	"os"

	"titerscope/internal/app"
	"titerscope/internal/logger"
	"titerscope/internal/version"
	"titerscope/ui/mainwindow"
	"titerscope/ui/prefs"

	fyneapp "fyne.io/fyne/v2/app"
	"github.com/rs/zerolog"
)

const appID = "io.titerscope.viewer"

func main() {
	log := logger.NewConsoleLogger(zerolog.InfoLevel)
	log.Info("main", "starting viewer", map[string]interface{}{"version": version.String()})

	fyneApp := fyneapp.NewWithID(appID)
	fyneApp.Settings().SetTheme(&app.ViewerTheme{})

	state := app.NewState(log)
	viewerPrefs := prefs.Load()

	win := mainwindow.New(fyneApp, state, viewerPrefs)
	win.SetMaster()

	// Handle command line arguments
	projectPath := viewerPrefs.String(prefs.KeyLastProject)
	if len(os.Args) > 1 {
		projectPath = os.Args[1]
	}
	if projectPath != "" {
		if _, err := os.Stat(projectPath); err == nil {
			win.OpenProject(projectPath)
		}
	}

	win.ShowAndRun()
	win.SavePreferences()
}
