// Package importengine ingests a user's Discogs wantlist and/or collection
// into watch-release rows, per §4.6.
package importengine

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/r3e-network/vinylwatch/infrastructure/errors"
	"github.com/r3e-network/vinylwatch/internal/app/domain/event"
	"github.com/r3e-network/vinylwatch/internal/app/domain/importjob"
	"github.com/r3e-network/vinylwatch/internal/app/domain/providerrequest"
	"github.com/r3e-network/vinylwatch/internal/app/domain/release"
	"github.com/r3e-network/vinylwatch/internal/app/services/accounts"
	"github.com/r3e-network/vinylwatch/internal/app/services/events"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
	"github.com/r3e-network/vinylwatch/pkg/logger"
)

const pageSize = 100

// Engine implements ensure_import_job and execute_import_job.
type Engine struct {
	Jobs      storage.ImportJobStore
	Accounts  *accounts.Service
	Releases  storage.ReleaseStore
	Requests  storage.ProviderRequestStore
	Events    *events.Service
	HTTP      *http.Client
	UserAgent string
	Log       *logger.Logger
}

// New builds an import engine.
func New(jobs storage.ImportJobStore, accountsSvc *accounts.Service, releases storage.ReleaseStore, requests storage.ProviderRequestStore, ev *events.Service, httpClient *http.Client, userAgent string, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("import-engine")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Engine{
		Jobs:      jobs,
		Accounts:  accountsSvc,
		Releases:  releases,
		Requests:  requests,
		Events:    ev,
		HTTP:      httpClient,
		UserAgent: userAgent,
		Log:       log,
	}
}

// EnsureImportJob implements ensure_import_job(user, source, cooldown_seconds?).
// It admits at most one in-flight job per (user, provider, scope), optionally
// collapsing a fresh request into a recently completed job within the
// cooldown window to prevent poll-storm duplicates.
func (e *Engine) EnsureImportJob(ctx context.Context, userID, provider string, scope importjob.Scope, cooldown time.Duration) (importjob.ImportJob, bool, error) {
	now := time.Now().UTC()
	candidate := importjob.ImportJob{
		UserID:      userID,
		Provider:    provider,
		ImportScope: scope,
		Status:      importjob.StatusRunning,
		StartedAt:   &now,
	}

	job, created, err := e.Jobs.CreateJobIfAbsent(ctx, candidate)
	if err != nil {
		return importjob.ImportJob{}, false, err
	}
	if !created {
		return job, false, nil
	}

	if cooldown > 0 {
		if recent, found, err := e.Jobs.FindRecentCompletedJob(ctx, userID, provider, string(scope), now.Add(-cooldown)); err == nil && found {
			_ = e.Jobs.DeleteJob(ctx, job.ID)
			return recent, false, nil
		}
	}

	if e.Events != nil {
		if _, err := e.Events.Record(ctx, userID, event.TypeImportStarted, events.WithPayload(map[string]any{
			"job_id":   job.ID,
			"provider": provider,
			"scope":    string(scope),
		})); err != nil {
			e.Log.WithError(err).WithField("job_id", job.ID).Warn("emit IMPORT_STARTED failed")
		}
	}

	return job, true, nil
}

// ExecuteImportJob implements execute_import_job(job_id): a no-op unless the
// job is currently running, since pending/terminal states never execute.
func (e *Engine) ExecuteImportJob(ctx context.Context, jobID string) error {
	job, err := e.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != importjob.StatusRunning {
		return nil
	}

	link, ok, err := e.Accounts.Get(ctx, job.UserID, job.Provider)
	if err != nil || !ok {
		return e.fail(ctx, job, errors.NotFound("account_link", job.UserID+":"+job.Provider))
	}

	token, err := e.Accounts.AccessToken(ctx, job.UserID, job.Provider)
	if err != nil {
		return e.fail(ctx, job, err)
	}

	for _, source := range sourcesFor(job.ImportScope) {
		if err := e.importSource(ctx, &job, link.ExternalUserID, token, source); err != nil {
			return e.fail(ctx, job, err)
		}
	}

	now := time.Now().UTC()
	job.Status = importjob.StatusCompleted
	job.CompletedAt = &now
	if _, err := e.Jobs.UpdateJob(ctx, job); err != nil {
		return err
	}

	if e.Events != nil {
		if _, err := e.Events.Record(ctx, job.UserID, event.TypeImportCompleted, events.WithPayload(map[string]any{
			"job_id":    job.ID,
			"processed": job.Processed,
			"imported":  job.Imported,
			"created":   job.Created,
			"updated":   job.Updated,
		})); err != nil {
			e.Log.WithError(err).WithField("job_id", job.ID).Warn("emit IMPORT_COMPLETED failed")
		}
	}
	return nil
}

func (e *Engine) fail(ctx context.Context, job importjob.ImportJob, cause error) error {
	job.Status = importjob.StatusFailed
	job.ErrorCount++
	job.Errors = append(job.Errors, providerrequest.TruncateError(redact(cause.Error())))
	if _, err := e.Jobs.UpdateJob(ctx, job); err != nil {
		e.Log.WithError(err).WithField("job_id", job.ID).Warn("persist failed import job failed")
	}
	if e.Events != nil {
		if _, err := e.Events.Record(ctx, job.UserID, event.TypeImportFailed, events.WithPayload(map[string]any{
			"job_id": job.ID,
			"error":  providerrequest.TruncateError(redact(cause.Error())),
		})); err != nil {
			e.Log.WithError(err).WithField("job_id", job.ID).Warn("emit IMPORT_FAILED failed")
		}
	}
	return cause
}

func sourcesFor(scope importjob.Scope) []importjob.Scope {
	switch scope {
	case importjob.ScopeBoth:
		return []importjob.Scope{importjob.ScopeWantlist, importjob.ScopeCollection}
	default:
		return []importjob.Scope{scope}
	}
}

// releaseUpsert is the normalized payload extracted from one Discogs
// basic_information block.
type releaseUpsert struct {
	ReleaseID int
	MasterID  *int
	Title     string
	Artist    string
	Year      *int
}

func (e *Engine) upsertRelease(ctx context.Context, job *importjob.ImportJob, userID string, source importjob.Scope, r releaseUpsert) error {
	job.Processed++

	existing, found, err := e.Releases.FindReleaseByDiscogsReleaseID(ctx, userID, r.ReleaseID)
	if err != nil {
		return err
	}

	if !found {
		wr := release.WatchRelease{
			UserID:           userID,
			DiscogsReleaseID: r.ReleaseID,
			DiscogsMasterID:  r.MasterID,
			MatchMode:        release.MatchModeExactRelease,
			Title:            r.Title,
			Artist:           r.Artist,
			Year:             r.Year,
			Currency:         release.DefaultCurrency,
			IsActive:         true,
		}
		applyImportFlag(&wr, source)
		if _, err := e.Releases.CreateRelease(ctx, wr); err != nil {
			return err
		}
		job.Created++
		job.Imported++
		return nil
	}

	existing.Title = r.Title
	existing.Artist = r.Artist
	existing.Year = r.Year
	if r.MasterID != nil {
		existing.DiscogsMasterID = r.MasterID
	}
	applyImportFlag(&existing, source)
	if _, err := e.Releases.UpdateRelease(ctx, existing); err != nil {
		return err
	}
	job.Updated++
	job.Imported++
	return nil
}

// applyImportFlag sets the imported_from_* flag for source without
// clobbering a previously-true flag for the other source.
func applyImportFlag(wr *release.WatchRelease, source importjob.Scope) {
	switch source {
	case importjob.ScopeWantlist:
		wr.ImportedFromWantlist = true
	case importjob.ScopeCollection:
		wr.ImportedFromCollection = true
	}
}

// bearerPattern matches an Authorization header value leaking into an error
// string (e.g. from an HTTP client's request dump).
var bearerPattern = regexp.MustCompile(`(?i)(token|bearer)\s+[A-Za-z0-9._-]+`)

// redact strips anything that looks like a bearer token or access token
// value from an error string before it is persisted, per the error-handling
// design's requirement that sensitive data never reach storage.
func redact(msg string) string {
	return bearerPattern.ReplaceAllString(msg, "$1 [redacted]")
}
