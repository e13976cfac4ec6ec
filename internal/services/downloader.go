package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"stablebatch/config"
	"stablebatch/internal/clients/transport"
	"stablebatch/internal/metrics"
	"stablebatch/utils"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

type DownloadReport struct {
	Downloaded int
	Skipped    int
	Failed     int
}

func (r DownloadReport) Complete() bool { return r.Failed == 0 }

// ImageFetcher downloads the output images of one job.
type ImageFetcher interface {
	FetchAll(ctx context.Context, id string, urls []string) DownloadReport
}

// Downloader saves output images to <baseDir>/<id>/<file name>. Files that
// already exist are never fetched again.
type Downloader struct {
	baseDir    string
	limit      int
	httpClient *http.Client
	metrics    *metrics.Metrics
	log        *log.Logger
}

func NewDownloader(config config.BatchConfig, m *metrics.Metrics) *Downloader {
	limit := config.DownloadConcurrency
	if limit <= 0 {
		limit = 1
	}
	return &Downloader{
		baseDir:    config.OutputDir,
		limit:      limit,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		metrics:    m,
		log:        log.With("component", "downloader"),
	}
}

// FetchAll never fails as a whole: every URL is attempted and failures are
// logged and counted per URL.
func (d *Downloader) FetchAll(ctx context.Context, id string, urls []string) DownloadReport {
	var (
		report DownloadReport
		mu     sync.Mutex
		group  errgroup.Group
	)
	group.SetLimit(d.limit)

	jobDir, err := utils.SafeSubdir(d.baseDir, id)
	if err != nil {
		d.log.Error("invalid job directory", "id", id, "err", err)
		report.Failed = len(urls)
		return report
	}

	for i, url := range urls {
		group.Go(func() error {
			skipped, err := d.fetchOne(ctx, jobDir, url, i)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				d.metrics.Downloads.WithLabelValues("failed").Inc()
				d.log.Error("image download failed", "id", id, "url", url, "err", err)
			case skipped:
				report.Skipped++
				d.metrics.Downloads.WithLabelValues("skipped").Inc()
				d.log.Debug("image already on disk", "id", id, "url", url)
			default:
				report.Downloaded++
				d.metrics.Downloads.WithLabelValues("ok").Inc()
				d.log.Info("downloaded image", "id", id, "url", url)
			}
			return nil
		})
	}
	_ = group.Wait()
	return report
}

func (d *Downloader) fetchOne(ctx context.Context, jobDir, url string, index int) (bool, error) {
	filename := utils.FileNameFromURL(url)
	if filename != "" && utils.Exists(filepath.Join(jobDir, filename)) {
		return true, nil
	}

	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return false, err
	}

	resp, err := transport.Download(d.httpClient, ctx, url, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if filename == "" {
		filename = utils.FileNameFromCd(resp.Header.Get("Content-Disposition"))
	}
	if filename == "" {
		filename = fmt.Sprintf("image-%02d.png", index+1)
	}
	filename = filepath.Base(filename)

	finalPath := filepath.Join(jobDir, filename)
	if utils.Exists(finalPath) {
		return true, nil
	}
	tmpPath := finalPath + ".part"

	out, err := os.Create(tmpPath)
	if err != nil {
		return false, err
	}

	_, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()

	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return false, copyErr
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return false, closeErr
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return false, err
	}
	return false, nil
}
