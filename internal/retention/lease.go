package retention

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"chatcore/pkg/state/logger"
	"chatcore/pkg/timeutil"
)

var ErrNotLeaseOwner = errors.New("lease held by another owner")

// fileLease serializes retention runs across processes sharing a db path.
type fileLease struct {
	path string
	now  timeutil.Clock
}

type leaseFile struct {
	Owner   string    `json:"owner"`
	Expires time.Time `json:"expires"`
}

func newFileLease(dir string, now timeutil.Clock) *fileLease {
	return &fileLease{path: filepath.Join(dir, "retention.lock"), now: timeutil.OrNow(now)}
}

// Acquire takes the lease when it is free or expired.
func (l *fileLease) Acquire(owner string, ttl time.Duration) (bool, error) {
	now := l.now()
	tmp, err := l.writeTemp(leaseFile{Owner: owner, Expires: now.Add(ttl)})
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp)

	// link fails when the lock exists, making creation atomic
	if err := os.Link(tmp, l.path); err == nil {
		logger.Debug("lease_acquired", "path", l.path, "owner", owner)
		return true, nil
	}
	existing, err := l.read()
	if err != nil {
		return false, err
	}
	if existing.Expires.After(now) {
		logger.Info("lease_currently_held", "path", l.path, "owner", existing.Owner, "expires", existing.Expires)
		return false, nil
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return false, err
	}
	logger.Info("lease_acquired_expired", "path", l.path, "owner", owner, "previous", existing.Owner)
	return true, nil
}

// Renew extends the lease held by owner.
func (l *fileLease) Renew(owner string, ttl time.Duration) error {
	existing, err := l.read()
	if err != nil {
		return err
	}
	if existing.Owner != owner {
		return ErrNotLeaseOwner
	}
	tmp, err := l.writeTemp(leaseFile{Owner: owner, Expires: l.now().Add(ttl)})
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (l *fileLease) Release(owner string) error {
	existing, err := l.read()
	if err != nil {
		return err
	}
	if existing.Owner != owner {
		return ErrNotLeaseOwner
	}
	return os.Remove(l.path)
}

func (l *fileLease) read() (leaseFile, error) {
	var lf leaseFile
	data, err := os.ReadFile(l.path)
	if err != nil {
		return lf, err
	}
	err = json.Unmarshal(data, &lf)
	return lf, err
}

func (l *fileLease) writeTemp(lf leaseFile) (string, error) {
	b, err := json.Marshal(lf)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(filepath.Dir(l.path), ".retention-*.tmp")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
