package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/dlkeeper/internal/common"
	sc "github.com/dmitrijs2005/dlkeeper/internal/server/config"
	"github.com/dmitrijs2005/dlkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/dlkeeper/internal/server/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *sc.Config {
	c := &sc.Config{}
	c.LoadDefaults()
	return c
}

type issuerFixture struct {
	svc     *IssuerService
	tokens  *memTokens
	metrics *metrics.Metrics
	log     *recordingLogger
}

func newIssuerFixture(t *testing.T, arts *fakeArtifacts) *issuerFixture {
	t.Helper()
	if arts == nil {
		arts = &fakeArtifacts{}
	}
	tokens := newMemTokens()
	rm := &fakeRepoManager{tokens: tokens, artifacts: arts}
	m := metrics.New()
	log := &recordingLogger{}
	cfg := testConfig()
	resolver := NewFileKeyResolver(nil, rm, cfg.DefaultFileKey, log)
	return &issuerFixture{
		svc:     NewIssuerService(nil, rm, resolver, cfg, m, log),
		tokens:  tokens,
		metrics: m,
		log:     log,
	}
}

func TestIssueTokens_OrderWithMappedAndUnmappedItems(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	withClock(t, now)
	f := newIssuerFixture(t, nil)

	rep, err := f.svc.IssueTokens(context.Background(), "O1", []LineItem{
		{ProductName: "Flowing Waves Abstract Print"},
		{ProductName: "Unmapped Product XYZ"},
	})
	require.NoError(t, err)
	require.Len(t, rep.Results, 2)
	assert.Equal(t, 2, rep.Issued)

	first, second := rep.Results[0], rep.Results[1]
	assert.Equal(t, "flowing_waves_print.png", first.FileKey)
	assert.Equal(t, ResolutionLegacy, first.Resolution)
	assert.Equal(t, ResolutionDefault, second.Resolution)
	assert.NotEmpty(t, second.FileKey)

	assert.Equal(t, 1, f.log.count("fallback file mapping"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FallbackMappings.WithLabelValues("default")))
	assert.Len(t, f.tokens.all(), 2)
}

func TestIssueTokens_ThreeItemsPolicy(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	withClock(t, now)
	f := newIssuerFixture(t, &fakeArtifacts{byProduct: map[string]models.ArtifactMapping{
		"p1": {ProductID: "p1", FileKey: "a.png", DisplayName: "A"},
	}})

	rep, err := f.svc.IssueTokens(context.Background(), "O2", []LineItem{
		{LineItemID: "l1", ProductID: "p1", ProductName: "A"},
		{LineItemID: "l2", ProductID: "p2", ProductName: "Grid Pattern Print"},
		{LineItemID: "l3", ProductID: "p3", ProductName: "Zzz Qqq"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Issued)

	seen := map[string]bool{}
	for _, r := range rep.Results {
		assert.Equal(t, StatusIssued, r.Status)
		assert.NotEmpty(t, r.FileKey)
		assert.Len(t, r.Token, 64)
		assert.False(t, seen[r.Token], "tokens must be distinct")
		seen[r.Token] = true
		assert.True(t, r.ExpiresAt.Equal(now.Add(7*24*time.Hour)))

		rec := f.tokens.get(r.Token)
		require.NotNil(t, rec)
		assert.Equal(t, 10, rec.MaxDownloads)
		assert.Equal(t, 0, rec.DownloadCount)
		assert.Equal(t, "O2", rec.OrderID)
		assert.False(t, strings.Contains(r.Token, "O2"))
	}
	assert.Equal(t, ResolutionCatalog, rep.Results[0].Resolution)
	assert.Equal(t, ResolutionLegacy, rep.Results[1].Resolution)
	assert.Equal(t, ResolutionDefault, rep.Results[2].Resolution)
}

func TestIssueTokens_EmptyDefaultKeyFailsItem(t *testing.T) {
	tokens := newMemTokens()
	rm := &fakeRepoManager{tokens: tokens, artifacts: &fakeArtifacts{}}
	m := metrics.New()
	log := &recordingLogger{}
	cfg := testConfig()
	cfg.DefaultFileKey = ""
	svc := NewIssuerService(nil, rm, NewFileKeyResolver(nil, rm, cfg.DefaultFileKey, log), cfg, m, log)

	rep, err := svc.IssueTokens(context.Background(), "O1", []LineItem{
		{LineItemID: "l1", ProductName: "Flowing Waves Abstract Print"},
		{LineItemID: "l2", ProductName: "Unmapped Product XYZ"},
	})
	require.NoError(t, err)
	require.Len(t, rep.Results, 2)
	assert.Equal(t, 1, rep.Issued)

	bad := rep.Results[1]
	assert.Equal(t, StatusFailed, bad.Status)
	assert.Empty(t, bad.Token)
	assert.Empty(t, bad.DownloadURL)
	assert.ErrorIs(t, bad.Err, common.ErrIssuanceFailure)

	require.Len(t, tokens.all(), 1)
	for _, rec := range tokens.all() {
		assert.NotEmpty(t, rec.FileKey)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IssuanceFailures))
}

func TestIssueTokens_DownloadURL(t *testing.T) {
	f := newIssuerFixture(t, nil)

	rep, err := f.svc.IssueTokens(context.Background(), "O3", []LineItem{{ProductName: "Grid Pattern Print"}})
	require.NoError(t, err)

	r := rep.Results[0]
	assert.Equal(t, "http://localhost:8080/download?token="+r.Token+"&file=grid_pattern_print.png", r.DownloadURL)
}

func TestIssueTokens_Idempotent(t *testing.T) {
	f := newIssuerFixture(t, nil)
	items := []LineItem{{LineItemID: "l1", ProductName: "Grid Pattern Print"}}

	first, err := f.svc.IssueTokens(context.Background(), "O4", items)
	require.NoError(t, err)
	second, err := f.svc.IssueTokens(context.Background(), "O4", items)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Issued)
	assert.Equal(t, 0, second.Issued)
	assert.Equal(t, StatusAlreadyIssued, second.Results[0].Status)
	assert.Empty(t, second.Results[0].Token)
	assert.Len(t, f.tokens.all(), 1)
}

func TestIssueTokens_PartialFailureContinues(t *testing.T) {
	f := newIssuerFixture(t, nil)

	orig := newDownloadToken
	calls := 0
	newDownloadToken = func() (string, error) {
		calls++
		if calls == 2 {
			return "", errors.New("entropy exhausted")
		}
		return orig()
	}
	defer func() { newDownloadToken = orig }()

	rep, err := f.svc.IssueTokens(context.Background(), "O5", []LineItem{
		{ProductName: "Grid Pattern Print"},
		{ProductName: "Two Brown Forms"},
		{ProductName: "Spiral Tangle Print"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Issued)
	assert.Equal(t, StatusFailed, rep.Results[1].Status)
	assert.ErrorIs(t, rep.Results[1].Err, common.ErrIssuanceFailure)
	assert.Equal(t, StatusIssued, rep.Results[2].Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IssuanceFailures))
}

func TestIssueTokens_StoreFailure(t *testing.T) {
	f := newIssuerFixture(t, nil)
	f.tokens.insertErr = errStoreDown

	rep, err := f.svc.IssueTokens(context.Background(), "O6", []LineItem{{ProductName: "Grid Pattern Print"}})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Issued)
	assert.Equal(t, StatusFailed, rep.Results[0].Status)
	assert.ErrorIs(t, rep.Results[0].Err, common.ErrIssuanceFailure)
}

func TestIssueTokens_EmptyOrderID(t *testing.T) {
	f := newIssuerFixture(t, nil)

	_, err := f.svc.IssueTokens(context.Background(), " ", []LineItem{{ProductName: "x"}})
	assert.ErrorIs(t, err, common.ErrIssuanceFailure)
}

func TestDownloadURL_BaseWithQuery(t *testing.T) {
	got := DownloadURL("https://shop.example/secure-download.html?v=2", "abc", "my file.png")
	assert.Equal(t, "https://shop.example/secure-download.html?v=2&token=abc&file=my+file.png", got)
}
