package importengine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/r3e-network/vinylwatch/internal/app/domain/importjob"
	"github.com/r3e-network/vinylwatch/internal/app/domain/providerrequest"
)

const discogsBaseURL = "https://api.discogs.com"

// importSource paginates one Discogs source (wantlist or collection) for
// externalUserID, upserting a WatchRelease per item, per §4.6 and the wire
// format in §6.
func (e *Engine) importSource(ctx context.Context, job *importjob.ImportJob, externalUserID, token string, source importjob.Scope) error {
	page := 1
	for {
		endpoint := discogsPageURL(externalUserID, source, page)

		start := time.Now()
		body, statusCode, err := e.fetchDiscogsPage(ctx, endpoint, token)
		e.logRequest(ctx, job.UserID, endpoint, statusCode, time.Since(start), err)
		if err != nil {
			return err
		}

		parsed := gjson.ParseBytes(body)
		results := parsed.Get(discogsItemsField(source))
		for _, item := range results.Array() {
			basic := item.Get("basic_information")
			if !basic.Exists() {
				basic = item
			}
			releaseID := int(basic.Get("id").Int())
			if releaseID == 0 {
				job.Processed++
				continue
			}
			r := releaseUpsert{
				ReleaseID: releaseID,
				Title:     basic.Get("title").String(),
				Artist:    firstArtistName(basic),
			}
			if masterID := basic.Get("master_id").Int(); masterID != 0 {
				mi := int(masterID)
				r.MasterID = &mi
			}
			if year := basic.Get("year").Int(); year != 0 {
				yi := int(year)
				r.Year = &yi
			}
			if err := e.upsertRelease(ctx, job, job.UserID, source, r); err != nil {
				return err
			}
		}

		pages := int(parsed.Get("pagination.pages").Int())
		if pages == 0 || page >= pages {
			return nil
		}
		page++
	}
}

func discogsItemsField(source importjob.Scope) string {
	if source == importjob.ScopeWantlist {
		return "wants"
	}
	return "releases"
}

func discogsPageURL(externalUserID string, source importjob.Scope, page int) string {
	if source == importjob.ScopeWantlist {
		return fmt.Sprintf("%s/users/%s/wants?page=%d&per_page=%d", discogsBaseURL, externalUserID, page, pageSize)
	}
	return fmt.Sprintf("%s/users/%s/collection/folders/0/releases?page=%d&per_page=%d", discogsBaseURL, externalUserID, page, pageSize)
}

func firstArtistName(basic gjson.Result) string {
	artists := basic.Get("artists")
	if !artists.Exists() {
		return ""
	}
	arr := artists.Array()
	if len(arr) == 0 {
		return ""
	}
	return arr[0].Get("name").String()
}

func (e *Engine) fetchDiscogsPage(ctx context.Context, endpoint, token string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Discogs token="+token)
	if e.UserAgent != "" {
		req.Header.Set("User-Agent", e.UserAgent)
	}

	resp, err := e.HTTP.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("importengine: discogs request failed with status %d", resp.StatusCode)
	}
	return body, resp.StatusCode, nil
}

func (e *Engine) logRequest(ctx context.Context, userID, endpoint string, statusCode int, duration time.Duration, err error) {
	if e.Requests == nil {
		return
	}
	durationMS := duration.Milliseconds()
	errMsg := ""
	if err != nil {
		errMsg = providerrequest.TruncateError(redact(err.Error()))
	}
	status := statusCode
	record := providerrequest.ProviderRequest{
		UserID:     userID,
		Provider:   "discogs",
		Endpoint:   endpoint,
		Method:     http.MethodGet,
		StatusCode: &status,
		DurationMS: &durationMS,
		Error:      errMsg,
	}
	if _, logErr := e.Requests.CreateProviderRequest(ctx, record); logErr != nil {
		e.Log.WithError(logErr).WithField("user_id", userID).Warn("persist import provider request log failed")
	}
}
