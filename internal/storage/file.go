package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "mailbot/pkg/logx"
)

// maxLoaded bounds the in-memory tail replayed from disk at open and kept
// current afterwards. The on-disk file itself is append-only and unbounded.
const maxLoaded = 1000

// fileStore is a dependency-free persistence backend: an append-only JSON
// Lines file plus an in-memory tail for reads.
type fileStore struct {
	log logx.Logger

	mu      sync.Mutex
	file    *os.File
	records []AlertRecord // oldest first, capped at maxLoaded
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	alertPath := filepath.Join(dir, base+".alerts.jsonl")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	records, err := replayAlerts(alertPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("alert history replay failed; starting empty", logx.Err(err))
	}

	f, err := os.OpenFile(alertPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{log: log, file: f, records: records}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileStore) AppendAlert(ctx context.Context, r AlertRecord) error {
	_ = ctx
	if r.At.IsZero() {
		r.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("alert file closed")
	}
	if err := json.NewEncoder(s.file).Encode(r); err != nil {
		return err
	}
	s.records = append(s.records, r)
	if len(s.records) > maxLoaded {
		s.records = s.records[len(s.records)-maxLoaded:]
	}
	return nil
}

func (s *fileStore) RecentAlerts(ctx context.Context, since time.Time, limit int) ([]AlertRecord, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []AlertRecord
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.records[i]
		if !since.IsZero() && r.At.Before(since) {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func replayAlerts(path string) ([]AlertRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []AlertRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var r AlertRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		records = append(records, r)
		if len(records) > maxLoaded {
			records = records[len(records)-maxLoaded:]
		}
	}
	return records, sc.Err()
}
