package reports

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gamesight/visualqa/internal/infra/render"
	"github.com/gamesight/visualqa/internal/middleware"

	domain "github.com/gamesight/visualqa/internal/domain/reports"
)

// RunWorkers starts the bounded worker pool and blocks until ctx is done
// and all workers drained. In-flight jobs interrupted by shutdown revert
// to queued so they are picked up again on the next start.
func (s *Service) RunWorkers(ctx context.Context, workers int) {
	s.Queue()
	if workers <= 0 {
		workers = 3
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-s.queue:
					s.process(ctx, worker, id)
				}
			}
		}(i)
	}
	wg.Wait()
}

func (s *Service) process(ctx context.Context, worker int, id domain.ReportID) {
	job, err := s.Repo.Get(ctx, id)
	if err != nil {
		log.Printf("worker=%d report=%s load error: %v", worker, id, err)
		return
	}
	if job.Status != domain.StatusQueued {
		// Another worker (or a previous run) already claimed it.
		return
	}

	if err := job.Transition(domain.StatusProcessing, s.Clock.Now()); err != nil {
		log.Printf("worker=%d report=%s claim error: %v", worker, id, err)
		return
	}
	if err := s.Repo.Save(ctx, job); err != nil {
		log.Printf("worker=%d report=%s save error: %v", worker, id, err)
		return
	}
	log.Printf("worker=%d report=%s processing format=%s run=%s", worker, id, job.Format, job.TestRunID)

	if err := s.render(ctx, job); err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-flight: revert so the job is never left stuck
			// in processing. Persist with a fresh context.
			s.revert(job)
			return
		}
		s.fail(ctx, job, err)
		return
	}

	if err := job.Transition(domain.StatusCompleted, s.Clock.Now()); err != nil {
		log.Printf("worker=%d report=%s complete transition error: %v", worker, id, err)
		return
	}
	if err := s.Repo.Save(ctx, job); err != nil {
		log.Printf("worker=%d report=%s save error: %v", worker, id, err)
		return
	}
	middleware.IncrementReportsCompleted()
	log.Printf("worker=%d report=%s completed artifact=%s bytes=%d", worker, id, job.ArtifactRef, job.FileSizeBytes)
}

// render aggregates, renders and uploads the artifact, mutating the job
// with the results. Storage failures here are fatal for the job.
func (s *Service) render(ctx context.Context, job *domain.ReportJob) error {
	data, err := s.aggregate(ctx, job)
	if err != nil {
		return err
	}
	job.GameTitle = data.GameTitle
	job.CostSummary, job.PerformanceSummary = summaries(data)

	rendererFor := s.Renderer
	if rendererFor == nil {
		rendererFor = render.ForFormat
	}
	renderer, err := rendererFor(job.Format)
	if err != nil {
		return err
	}
	artifact, contentType, err := renderer.Render(ctx, data)
	if err != nil {
		return fmt.Errorf("render %s: %w", job.Format, err)
	}

	timeout := s.StorageTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	putCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	key := fmt.Sprintf("reports/%s/%s.%s", job.TestRunID, job.ID, render.Ext(job.Format))
	ref, err := s.Blobs.Put(putCtx, key, artifact, contentType)
	if err != nil {
		return fmt.Errorf("upload artifact: %w", err)
	}
	job.ArtifactRef = ref
	job.FileSizeBytes = int64(len(artifact))
	return nil
}

// fail marks the job terminally failed. Failures are explicit: no
// automatic retry, the caller must re-submit.
func (s *Service) fail(ctx context.Context, job *domain.ReportJob, cause error) {
	job.ErrorMessage = cause.Error()
	if err := job.Transition(domain.StatusFailed, s.Clock.Now()); err != nil {
		log.Printf("report=%s fail transition error: %v", job.ID, err)
		return
	}
	if err := s.Repo.Save(ctx, job); err != nil {
		log.Printf("report=%s save failed-state error: %v", job.ID, err)
	}
	middleware.IncrementReportsFailed()
	log.Printf("report=%s failed: %v", job.ID, cause)
}

func (s *Service) revert(job *domain.ReportJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := job.Transition(domain.StatusQueued, s.Clock.Now()); err != nil {
		log.Printf("report=%s revert transition error: %v", job.ID, err)
		return
	}
	if err := s.Repo.Save(ctx, job); err != nil {
		log.Printf("report=%s revert save error: %v", job.ID, err)
	}
}

// RunRetentionSweep purges completed/failed jobs older than the retention
// window, deleting both the DB row and the blob artifact. Blocks until
// ctx is done.
func (s *Service) RunRetentionSweep(ctx context.Context, every, retention time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.retentionPass(ctx, retention)
		}
	}
}

func (s *Service) retentionPass(ctx context.Context, retention time.Duration) {
	cutoff := s.Clock.Now().Add(-retention)
	expired, err := s.Repo.ListExpired(ctx, cutoff)
	if err != nil {
		log.Printf("retention sweep list error: %v", err)
		return
	}
	for _, job := range expired {
		if job.ArtifactRef != "" {
			if err := s.Blobs.Delete(ctx, job.ArtifactRef); err != nil {
				log.Printf("retention sweep blob delete error report=%s: %v", job.ID, err)
				continue // keep the row so the next pass retries the blob
			}
		}
		if err := s.Repo.Delete(ctx, job.ID); err != nil {
			log.Printf("retention sweep row delete error report=%s: %v", job.ID, err)
			continue
		}
		log.Printf("retention sweep purged report=%s completed_at=%v", job.ID, job.CompletedAt)
	}
}
