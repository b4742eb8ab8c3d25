package store

import (
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"

	"pulseboard/domain"
)

const sessionFile = "session.json"

// SaveSession persists the current user so the client can restore it on the
// next start.
func SaveSession(dir string, sess domain.Session) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := sonic.Marshal(sess)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, sessionFile), data, 0o600)
}

// LoadSession restores the persisted user, reporting false when no valid
// session exists.
func LoadSession(dir string) (domain.Session, bool) {
	data, err := os.ReadFile(filepath.Join(dir, sessionFile))
	if err != nil {
		return domain.Session{}, false
	}
	var sess domain.Session
	if err := sonic.Unmarshal(data, &sess); err != nil {
		return domain.Session{}, false
	}
	if sess.DistinctID == "" {
		return domain.Session{}, false
	}
	return sess, true
}

// ClearSession destroys the persisted user record. Sign-out composes this
// with Discard so the user's tasks go with it.
func ClearSession(dir string) error {
	err := os.Remove(filepath.Join(dir, sessionFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Discard removes the stored task collection for distinctID. A missing file
// is a no-op.
func Discard(dir, distinctID string) error {
	s := &TaskStore{dir: dir, distinctID: distinctID}
	err := os.Remove(s.path())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
