package credstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-auth-client/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const storeFileName = "session.json"

// storedState is the on-disk document. The user profile is kept raw so a
// corrupted value can be detected independently of the tokens around it.
type storedState struct {
	AccessToken  string          `json:"access_token,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	User         json.RawMessage `json:"user,omitempty"`
}

// FileRepo stores credentials in a single JSON file under a data folder.
// All operations are synchronous writes, so the file always reflects the
// last completed update.
type FileRepo struct {
	mu   sync.Mutex
	path string
}

// NewFileRepo creates the data folder if needed and returns a repo backed by
// a session file inside it.
func NewFileRepo(dataFolder string) (*FileRepo, error) {
	if dataFolder == "" {
		return nil, errors.New("[NewFileRepo] data folder is required")
	}
	if err := os.MkdirAll(dataFolder, 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewFileRepo] create data folder")
	}
	return &FileRepo{path: filepath.Join(dataFolder, storeFileName)}, nil
}

// Load reads the persisted snapshot. A missing file yields an empty
// snapshot. Anything unparseable is treated as absent and the store is
// cleared so the next load starts clean.
func (r *FileRepo) Load() (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.read()
	if err != nil {
		return Snapshot{}, err
	}
	if state == nil {
		return Snapshot{}, nil
	}

	snapshot := Snapshot{
		AccessToken:  state.AccessToken,
		RefreshToken: state.RefreshToken,
	}
	if len(state.User) > 0 {
		var user session.User
		if err := json.Unmarshal(state.User, &user); err != nil {
			log.Err(err).Msg("[FileRepo.Load] stored user unparseable, clearing store")
			if err := r.remove(); err != nil {
				return Snapshot{}, err
			}
			return Snapshot{}, nil
		}
		snapshot.User = user
	}
	return snapshot, nil
}

// Save applies a partial update on top of the current persisted state.
func (r *FileRepo) Save(partial Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.read()
	if err != nil {
		return err
	}
	if state == nil {
		state = &storedState{}
	}

	if partial.AccessToken != nil {
		state.AccessToken = *partial.AccessToken
	}
	if partial.RefreshToken != nil {
		state.RefreshToken = *partial.RefreshToken
	}
	if partial.User != nil {
		raw, err := json.Marshal(*partial.User)
		if err != nil {
			return errors.Wrap(err, "[FileRepo.Save] marshal user")
		}
		state.User = raw
	}

	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "[FileRepo.Save] marshal state")
	}
	if err := os.WriteFile(r.path, data, 0o600); err != nil {
		return errors.Wrap(err, "[FileRepo.Save] write state")
	}
	return nil
}

// Clear removes all persisted credentials and the cached user together.
func (r *FileRepo) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remove()
}

// read returns nil when nothing is stored yet. A file that is not valid
// JSON at the top level is removed and reported as empty.
func (r *FileRepo) read() (*storedState, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[FileRepo.read] read state")
	}

	var state storedState
	if err := json.Unmarshal(data, &state); err != nil {
		log.Err(err).Msg("[FileRepo.read] state file unparseable, clearing store")
		if err := r.remove(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &state, nil
}

func (r *FileRepo) remove() error {
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FileRepo.remove] remove state")
	}
	return nil
}
