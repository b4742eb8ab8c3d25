package main

import (
	"os"
	"path/filepath"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"pulseboard/board"
	"pulseboard/notify"
	"pulseboard/store"
	"pulseboard/tui"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()
	// The terminal belongs to bubbletea; keep log output away from it.
	if f, err := os.OpenFile(filepath.Join(os.TempDir(), "pulseboard.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600); err == nil {
		logger.SetOutput(f)
		defer f.Close()
	}

	apiURL := os.Getenv("PULSEBOARD_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	dataDir := os.Getenv("PULSEBOARD_DATA_DIR")
	if dataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			log.Fatalf("resolve config dir: %v", err)
		}
		dataDir = filepath.Join(base, "pulseboard")
	}

	sess, ok := store.LoadSession(dataDir)
	if !ok {
		var err error
		sess, err = signIn(apiURL, logger)
		if err != nil {
			log.Fatalf("sign in: %v", err)
		}
		if err := store.SaveSession(dataDir, sess); err != nil {
			logger.WithError(err).Warn("session not persisted")
		}
	}

	st := store.Open(dataDir, sess.DistinctID, logger)
	gate := notify.NewGate(newPreferenceClient(apiURL, sess.Token, logger), logger)
	dispatcher := notify.NewDispatcher(notify.Config{
		BaseURL: apiURL,
		AppURL:  os.Getenv("PULSEBOARD_APP_URL"),
		Token:   sess.Token,
		Logger:  logger,
	}, sess, gate)
	ctrl := board.NewController(st, dispatcher, logger)

	signOut := func() error {
		if err := store.Discard(dataDir, sess.DistinctID); err != nil {
			logger.WithError(err).Warn("task discard failed")
		}
		return store.ClearSession(dataDir)
	}

	m := tui.New(st, ctrl, dispatcher, sess, signOut, logger)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Fatal(err)
	}
}
