package exception

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Nystya/txgroup/domain"
)

type WriteAheadLogConfig struct {
	Dir         string
	MaxFileSize int64
	Prefix      string
}

// WriteAheadLog appends exception records as JSON lines to size-bounded
// segment files and keeps an in-memory index rebuilt from them on open.
type WriteAheadLog struct {
	dir         string
	fileList    []string
	activeFile  string
	nextIndex   int
	maxFileSize int64
	prefix      string

	index *MemoryStore
	lock  *sync.Mutex
}

const KiloByte = 1024

func segmentIndex(path string) int64 {
	idx, err := strconv.ParseInt(strings.Split(filepath.Base(path), "_")[0], 10, 64)
	if err != nil {
		return -1
	}

	return idx
}

func NewWriteAheadLog(config *WriteAheadLogConfig) (*WriteAheadLog, error) {
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, err
	}

	fileList, err := os.ReadDir(config.Dir)
	if err != nil {
		return nil, err
	}

	fileListNames := make([]string, 0)
	for _, file := range fileList {
		if file.IsDir() || !strings.HasSuffix(file.Name(), "_wal") {
			continue
		}

		fileListNames = append(fileListNames, filepath.Join(config.Dir, file.Name()))
	}

	sort.Slice(fileListNames, func(i, j int) bool {
		return segmentIndex(fileListNames[i]) < segmentIndex(fileListNames[j])
	})

	var activeFile string
	var nextIndex int
	if len(fileListNames) > 0 {
		activeFile = fileListNames[len(fileListNames)-1]
		nextIndex = int(segmentIndex(activeFile)) + 1
	}

	w := &WriteAheadLog{
		dir:         config.Dir,
		fileList:    fileListNames,
		activeFile:  activeFile,
		nextIndex:   nextIndex,
		maxFileSize: config.MaxFileSize * KiloByte,
		prefix:      config.Prefix,
		index:       NewMemoryStore(),
		lock:        &sync.Mutex{},
	}

	if err := w.recover(); err != nil {
		return nil, err
	}

	return w, nil
}

func (w *WriteAheadLog) recover() error {
	for _, file := range w.fileList {
		if err := w.replay(file); err != nil {
			return fmt.Errorf("replay %s: %w", file, err)
		}
	}

	return nil
}

func (w *WriteAheadLog) replay(file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := bufio.NewReader(f)

	var offset int64
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(line) == 0 {
				return nil
			}

			// a torn last line is cut off so the next append starts on a fresh line
			return os.Truncate(file, offset)
		}

		if err != nil {
			return err
		}

		record := &domain.ExceptionRecord{}
		if err := json.Unmarshal(line, record); err != nil {
			return domain.SerializationError{Err: err}
		}

		w.index.apply(record)
		offset += int64(len(line))
	}
}

func (w *WriteAheadLog) Record(_ context.Context, record *domain.ExceptionRecord) error {
	marshal, err := json.Marshal(record)
	if err != nil {
		return domain.SerializationError{Err: err}
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	if err := w.rotate(); err != nil {
		return err
	}

	file, err := os.OpenFile(w.activeFile, os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return err
	}
	defer file.Close()

	data := append(marshal, '\n')

	curLen := 0
	for curLen < len(data) {
		writtenLen, err := file.Write(data[curLen:])
		if err != nil {
			return err
		}

		curLen += writtenLen
	}

	if err := file.Sync(); err != nil {
		return err
	}

	w.index.lock.Lock()
	w.index.apply(record)
	w.index.lock.Unlock()

	return nil
}

// rotate must be called with the lock held.
func (w *WriteAheadLog) rotate() error {
	if w.activeFile == "" {
		return w.createNextFile()
	}

	stat, err := os.Stat(w.activeFile)
	if err != nil {
		return err
	}

	if stat.Size() >= w.maxFileSize {
		return w.createNextFile()
	}

	return nil
}

func (w *WriteAheadLog) createNextFile() error {
	create, err := os.Create(filepath.Join(w.dir, fmt.Sprintf("%d_%s_wal", w.nextIndex, w.prefix)))
	if err != nil {
		return err
	}

	w.activeFile = create.Name()
	w.fileList = append(w.fileList, w.activeFile)
	w.nextIndex++

	return create.Close()
}

func (w *WriteAheadLog) TransactionState(ctx context.Context, groupID string) (domain.State, error) {
	return w.index.TransactionState(ctx, groupID)
}

func (w *WriteAheadLog) Exceptions(ctx context.Context, groupID string) ([]*domain.ExceptionRecord, error) {
	return w.index.Exceptions(ctx, groupID)
}

func (w *WriteAheadLog) segments() []string {
	w.lock.Lock()
	defer w.lock.Unlock()

	return append([]string(nil), w.fileList...)
}

func (w *WriteAheadLog) Close() error {
	return nil
}
