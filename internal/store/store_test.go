package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"transcript-studio/internal/domain"
)

// runStoreContract exercises behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateGetList", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, domain.Project{SourceRef: "https://example.com/a"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if created.ID == "" || created.Status != domain.ProjectStatusCreated {
			t.Fatalf("created = %+v", created)
		}

		got, err := s.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.SourceRef != created.SourceRef || got.Status != created.Status {
			t.Fatalf("Get() = %+v, want %+v", got, created)
		}

		list, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		found := false
		for _, p := range list {
			found = found || p.ID == created.ID
		}
		if !found {
			t.Fatalf("List() missing %s", created.ID)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get() error = %v, want not found", err)
		}
	})

	t.Run("UpdateAppliesMutator", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := mustCreate(t, s)

		updated, err := s.Update(ctx, p.ID, func(p *domain.Project) error {
			p.Status = domain.ProjectStatusDownloading
			p.Title = "talk"
			return nil
		})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if updated.Status != domain.ProjectStatusDownloading || updated.Title != "talk" {
			t.Fatalf("updated = %+v", updated)
		}
		got, _ := s.Get(ctx, p.ID)
		if got.Title != "talk" {
			t.Fatalf("persisted title = %q", got.Title)
		}
	})

	t.Run("UpdateMutatorErrorWritesNothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := mustCreate(t, s)

		boom := errors.New("boom")
		_, err := s.Update(ctx, p.ID, func(p *domain.Project) error {
			p.Title = "changed"
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Update() error = %v, want %v", err, boom)
		}
		got, _ := s.Get(ctx, p.ID)
		if got.Title != "" {
			t.Fatalf("title = %q, want unchanged", got.Title)
		}
	})

	t.Run("UpdateRejectsUnknownStatus", func(t *testing.T) {
		s := newStore(t)
		p := mustCreate(t, s)
		_, err := s.Update(context.Background(), p.ID, func(p *domain.Project) error {
			p.Status = "paused"
			return nil
		})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("Update() error = %v, want invalid input", err)
		}
	})

	t.Run("TranscriptLatestAndUpdate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := mustCreate(t, s)

		if _, err := s.LatestTranscript(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("LatestTranscript() error = %v, want not found", err)
		}

		at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		first, err := s.SaveTranscript(ctx, domain.Transcript{
			ProjectID: p.ID, Language: "en", CreatedAt: at,
			Segments: []domain.Segment{{Start: 0, End: 1, Text: "first"}},
		})
		if err != nil {
			t.Fatalf("SaveTranscript() error = %v", err)
		}
		second, err := s.SaveTranscript(ctx, domain.Transcript{
			ProjectID: p.ID, Language: "en", CreatedAt: at,
			Segments: []domain.Segment{{Start: 0, End: 1, Text: "second"}},
		})
		if err != nil {
			t.Fatalf("SaveTranscript() error = %v", err)
		}
		if first.ID == second.ID {
			t.Fatal("transcript ids collide")
		}

		latest, err := s.LatestTranscript(ctx, p.ID)
		if err != nil {
			t.Fatalf("LatestTranscript() error = %v", err)
		}
		if latest.ID != second.ID {
			t.Fatalf("latest = %s, want %s (insertion order breaks ties)", latest.ID, second.ID)
		}

		updated, err := s.UpdateTranscript(ctx, p.ID, func(tr *domain.Transcript) error {
			tr.Segments[0].Speaker = "Speaker A"
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateTranscript() error = %v", err)
		}
		if updated.ID != second.ID || updated.Segments[0].Speaker != "Speaker A" {
			t.Fatalf("updated = %+v", updated)
		}
		latest, _ = s.LatestTranscript(ctx, p.ID)
		if latest.Segments[0].Speaker != "Speaker A" {
			t.Fatalf("persisted speaker = %q", latest.Segments[0].Speaker)
		}
	})

	t.Run("SaveTranscriptRejectsDisorder", func(t *testing.T) {
		s := newStore(t)
		p := mustCreate(t, s)
		_, err := s.SaveTranscript(context.Background(), domain.Transcript{
			ProjectID: p.ID,
			Segments: []domain.Segment{
				{Start: 3, End: 4, Text: "b"},
				{Start: 1, End: 2, Text: "a"},
			},
		})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("SaveTranscript() error = %v, want invalid input", err)
		}
	})

	t.Run("SaveTranscriptForMissingProject", func(t *testing.T) {
		s := newStore(t)
		_, err := s.SaveTranscript(context.Background(), domain.Transcript{ProjectID: "missing"})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("SaveTranscript() error = %v, want not found", err)
		}
	})

	t.Run("DeleteRemovesTranscripts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := mustCreate(t, s)
		if _, err := s.SaveTranscript(ctx, domain.Transcript{ProjectID: p.ID}); err != nil {
			t.Fatalf("SaveTranscript() error = %v", err)
		}

		removed, err := s.Delete(ctx, p.ID)
		if err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if removed.ID != p.ID {
			t.Fatalf("removed = %+v", removed)
		}
		if _, err := s.Get(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get() after delete error = %v", err)
		}
		if _, err := s.LatestTranscript(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("LatestTranscript() after delete error = %v", err)
		}
		if _, err := s.Delete(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("second Delete() error = %v", err)
		}
	})

	t.Run("ConcurrentUpdatesSerialize", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := mustCreate(t, s)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Update(ctx, p.ID, func(p *domain.Project) error {
					p.Duration++
					return nil
				})
				if err != nil {
					t.Errorf("Update() error = %v", err)
				}
			}()
		}
		wg.Wait()

		got, _ := s.Get(ctx, p.ID)
		if got.Duration != 20 {
			t.Fatalf("duration = %v, want 20", got.Duration)
		}
	})
}

func mustCreate(t *testing.T, s Store) domain.Project {
	t.Helper()
	p, err := s.Create(context.Background(), domain.Project{SourceRef: "https://example.com/v"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return p
}
