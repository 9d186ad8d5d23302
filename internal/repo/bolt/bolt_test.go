package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/repo"
	"github.com/hamed0406/infrawatch/internal/repo/repotest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "iw.bolt"), zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBoltStore_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repo.Store { return openTemp(t) })
}

func TestBoltStore_CheckNeedsAsset(t *testing.T) {
	s := openTemp(t)
	if err := s.CreateCheck(context.Background(), &domain.Check{AssetID: "ghost", Name: "ping", Kind: domain.KindPing}); err == nil {
		t.Fatalf("check for unknown asset must be rejected")
	}
}

func TestResultKey_OrdersByTime(t *testing.T) {
	t0 := time.Date(2025, 8, 18, 10, 0, 0, 0, time.UTC)
	early := resultKey(t0, 9)
	late := resultKey(t0.Add(time.Nanosecond), 1)
	if string(early) >= string(late) {
		t.Fatalf("keys must sort by time before sequence")
	}
	if string(timePrefix(t0)) > string(early) {
		t.Fatalf("prefix must seek to the first key at that instant")
	}
}
