package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/dlkeeper/internal/common"
	"github.com/dmitrijs2005/dlkeeper/internal/dbx"
	"github.com/dmitrijs2005/dlkeeper/internal/logging"
	"github.com/dmitrijs2005/dlkeeper/internal/server/models"
	"github.com/dmitrijs2005/dlkeeper/internal/server/repositories/artifacts"
	"github.com/dmitrijs2005/dlkeeper/internal/server/repositories/downloadtokens"
)

// memTokens is an in-memory downloadtokens.Repository with the same
// conditional increment semantics as the SQL one.
type memTokens struct {
	mu   sync.Mutex
	rows map[string]*models.DownloadToken
	// line items already provisioned, keyed by order + line item
	lines map[string]struct{}

	insertErr error
	incErr    error
	// forceLoseRace makes the next increment behave as if another
	// redemption had taken the last slot.
	forceLoseRace bool
	deletes       int
}

func newMemTokens() *memTokens {
	return &memTokens{rows: map[string]*models.DownloadToken{}, lines: map[string]struct{}{}}
}

func (m *memTokens) Insert(_ context.Context, t *models.DownloadToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if t.LineItemID != "" {
		k := t.OrderID + "/" + t.LineItemID
		if _, ok := m.lines[k]; ok {
			return common.ErrorAlreadyExists
		}
		m.lines[k] = struct{}{}
	}
	cp := *t
	m.rows[t.Token] = &cp
	return nil
}

func (m *memTokens) FindByTokenAndFileKey(_ context.Context, token, fileKey string) (*models.DownloadToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[token]
	if !ok || r.FileKey != fileKey {
		return nil, common.ErrorNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memTokens) DeleteByToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.rows, token)
	return nil
}

func (m *memTokens) IncrementDownloadCount(_ context.Context, token string, at time.Time) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incErr != nil {
		return 0, false, m.incErr
	}
	if m.forceLoseRace {
		m.forceLoseRace = false
		return 0, false, nil
	}
	r, ok := m.rows[token]
	if !ok || r.DownloadCount >= r.MaxDownloads {
		return 0, false, nil
	}
	r.DownloadCount++
	r.LastDownloadedAt = &at
	return r.DownloadCount, true, nil
}

func (m *memTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, r := range m.rows {
		if r.ExpiresAt.Before(now) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func (m *memTokens) get(token string) *models.DownloadToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[token]
}

func (m *memTokens) all() []*models.DownloadToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.DownloadToken, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out
}

type fakeArtifacts struct {
	artifacts.Repository
	byProduct  map[string]models.ArtifactMapping
	resolveErr error
}

func (f *fakeArtifacts) Resolve(_ context.Context, productID string) (*models.ArtifactMapping, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	m, ok := f.byProduct[productID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &m, nil
}

type fakeRepoManager struct {
	tokens    downloadtokens.Repository
	artifacts artifacts.Repository
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) DownloadTokens(dbx.DBTX) downloadtokens.Repository {
	return m.tokens
}
func (m *fakeRepoManager) Artifacts(dbx.DBTX) artifacts.Repository {
	if m.artifacts == nil {
		return &fakeArtifacts{}
	}
	return m.artifacts
}

type memBlobs struct {
	objects map[string][]byte
	err     error
	opened  atomic.Int32
	closed  atomic.Int32
}

type trackingBody struct {
	io.Reader
	b *memBlobs
}

func (t *trackingBody) Close() error {
	t.b.closed.Add(1)
	return nil
}

func (b *memBlobs) Get(_ context.Context, key string) (io.ReadCloser, int64, error) {
	if b.err != nil {
		return nil, 0, b.err
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, 0, common.ErrorNotFound
	}
	b.opened.Add(1)
	return &trackingBody{Reader: bytes.NewReader(data), b: b}, int64(len(data)), nil
}

var errStoreDown = errors.New("store down")

// withClock pins nowFn for the duration of a test.
func withClock(t *testing.T, now time.Time) {
	t.Helper()
	orig := nowFn
	nowFn = func() time.Time { return now }
	t.Cleanup(func() { nowFn = orig })
}

// recordingLogger captures warnings so tests can assert on degraded paths.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(context.Context, string, ...any) {}
func (l *recordingLogger) Info(context.Context, string, ...any)  {}
func (l *recordingLogger) Warn(_ context.Context, msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}
func (l *recordingLogger) Error(context.Context, string, ...any) {}
func (l *recordingLogger) With(...any) logging.Logger          { return l }

func (l *recordingLogger) count(msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, w := range l.warns {
		if w == msg {
			n++
		}
	}
	return n
}
