package users

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/filex"
	"github.com/dmitrijs2005/chatgate/internal/logging"
)

// FileRepository keeps users in a newline-delimited JSON file, one record
// per line. A missing file is an empty store.
//
// Writers are serialized twice: by a mutex inside the process and by an
// advisory lock on "<path>.lock" across processes sharing the file.
type FileRepository struct {
	path     string
	lockPath string
	logger   logging.Logger

	mu      sync.RWMutex
	skipped atomic.Int64
}

var (
	_ Repository  = (*FileRepository)(nil)
	_ InitChecker = (*FileRepository)(nil)
)

// NewFileRepository prepares path for use; the parent directory is created
// if needed but the data file itself only appears with the first record.
func NewFileRepository(path string, logger logging.Logger) (*FileRepository, error) {
	abs, err := filex.EnsureParentDir(path)
	if err != nil {
		return nil, storageError("prepare store", err)
	}
	return &FileRepository{
		path:     abs,
		lockPath: abs + ".lock",
		logger:   logger.With("store", abs),
	}, nil
}

func (r *FileRepository) Path() string { return r.path }

// SkippedRecords implements SkipCounter.
func (r *FileRepository) SkippedRecords() int64 { return r.skipped.Load() }

func (r *FileRepository) Create(ctx context.Context, u *User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	return r.withLock(true, func() error {
		existing, err := r.load(ctx)
		if err != nil {
			return err
		}
		if err := checkUnique(existing, u); err != nil {
			return err
		}
		return r.appendLine(line)
	})
}

func (r *FileRepository) All(ctx context.Context) ([]*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var users []*User
	err := r.withLock(false, func() error {
		var err error
		users, err = r.load(ctx)
		return err
	})
	return users, err
}

func (r *FileRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.find(ctx, func(u *User) bool { return u.Email == email })
}

func (r *FileRepository) GetByMobile(ctx context.Context, mobile string) (*User, error) {
	if mobile == "" {
		return nil, common.ErrorNotFound
	}
	return r.find(ctx, func(u *User) bool { return u.Mobile == mobile })
}

func (r *FileRepository) Count(ctx context.Context) (int, error) {
	users, err := r.All(ctx)
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

// Initialized implements InitChecker: the store exists once its data file
// does, even if the file holds no valid record.
func (r *FileRepository) Initialized(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := filex.Exists(r.path)
	if err != nil {
		return false, storageError("stat store", err)
	}
	return ok, nil
}

func (r *FileRepository) find(ctx context.Context, match func(*User) bool) (*User, error) {
	users, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if match(u) {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

// withLock runs fn holding the in-process lock and the advisory file lock.
// Readers fall back to the in-process lock alone when the lock file cannot
// be opened (e.g. a read-only directory).
func (r *FileRepository) withLock(exclusive bool, fn func() error) error {
	if exclusive {
		r.mu.Lock()
		defer r.mu.Unlock()
	} else {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}

	lf, err := os.OpenFile(r.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		if exclusive {
			return storageError("open lock file", err)
		}
		return fn()
	}
	defer lf.Close()

	if err := lockFile(lf, exclusive); err != nil {
		return storageError("lock store", err)
	}
	defer func() { _ = unlockFile(lf) }()

	return fn()
}

// load reads every well-formed record. Lines that fail to decode or break
// a record invariant are skipped and logged.
func (r *FileRepository) load(ctx context.Context) ([]*User, error) {
	f, err := os.Open(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		r.skipped.Store(0)
		return nil, nil
	}
	if err != nil {
		return nil, storageError("open store", err)
	}
	defer f.Close()

	var (
		users   []*User
		skipped int64
		lineNo  int
	)

	br := bufio.NewReader(f)
	for {
		raw, readErr := br.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, storageError("read store", readErr)
		}
		lineNo++

		line := bytes.TrimSpace(raw)
		if len(line) > 0 {
			u, err := decodeRecord(line)
			if err != nil {
				skipped++
				r.logger.Warn(ctx, "skipping malformed user record", "line", lineNo, "error", err)
			} else {
				users = append(users, u)
			}
		}

		if readErr != nil {
			break
		}
	}

	r.skipped.Store(skipped)
	return users, nil
}

func decodeRecord(line []byte) (*User, error) {
	var u User
	if err := json.Unmarshal(line, &u); err != nil {
		return nil, err
	}
	if err := u.normalize(); err != nil {
		return nil, err
	}
	return &u, nil
}

// appendLine writes one record and syncs it. A file whose last byte is not
// a newline (hand edits) gets one first so records never share a line.
func (r *FileRepository) appendLine(line []byte) error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return storageError("open store for append", err)
	}

	buf := make([]byte, 0, len(line)+2)

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return storageError("stat store", err)
	}
	if size := fi.Size(); size > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, size-1); err != nil {
			_ = f.Close()
			return storageError("read store tail", err)
		}
		if last[0] != '\n' {
			buf = append(buf, '\n')
		}
	}
	buf = append(buf, line...)
	buf = append(buf, '\n')

	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return storageError("append record", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return storageError("sync store", err)
	}
	if err := f.Close(); err != nil {
		return storageError("close store", err)
	}
	return nil
}
