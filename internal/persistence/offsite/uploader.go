package offsite

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Stats struct {
	QueueDepth int
	Enqueued   uint64
	Dropped    uint64
	Uploaded   uint64
	Failed     uint64
}

// Uploader drains a bounded queue of local files into a Client. Keys are the
// file path relative to baseDir.
type Uploader struct {
	client  *Client
	baseDir string
	log     *log.Logger
	backoff time.Duration

	jobs chan string
	wg   sync.WaitGroup

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	uploaded atomic.Uint64
	failed   atomic.Uint64
}

func NewUploader(client *Client, baseDir string, queue int, logger *log.Logger) *Uploader {
	if queue <= 0 {
		queue = 256
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	u := &Uploader{
		client:  client,
		baseDir: baseDir,
		log:     logger,
		backoff: 200 * time.Millisecond,
		jobs:    make(chan string, queue),
	}
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		for p := range u.jobs {
			u.upload(p)
		}
	}()
	return u
}

// Enqueue schedules localPath for upload without blocking. A full queue
// drops the file; it stays on local disk.
func (u *Uploader) Enqueue(localPath string) {
	if u == nil {
		return
	}
	u.enqueued.Add(1)
	select {
	case u.jobs <- localPath:
	default:
		u.dropped.Add(1)
		u.log.Printf("offsite drop local=%s reason=queue_full", localPath)
	}
}

// Close waits for queued uploads to finish.
func (u *Uploader) Close() {
	if u == nil {
		return
	}
	close(u.jobs)
	u.wg.Wait()
}

func (u *Uploader) Stats() Stats {
	if u == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth: len(u.jobs),
		Enqueued:   u.enqueued.Load(),
		Dropped:    u.dropped.Load(),
		Uploaded:   u.uploaded.Load(),
		Failed:     u.failed.Load(),
	}
}

func (u *Uploader) upload(localPath string) {
	key, err := u.key(localPath)
	if err != nil {
		u.failed.Add(1)
		u.log.Printf("offsite skip local=%s err=%v", localPath, err)
		return
	}
	const attempts = 4
	for i := 1; i <= attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = u.client.PutFile(ctx, key, localPath)
		cancel()
		if err == nil {
			u.uploaded.Add(1)
			u.log.Printf("offsite uploaded key=%s", key)
			return
		}
		if i < attempts {
			time.Sleep(time.Duration(i*i) * u.backoff)
		}
	}
	u.failed.Add(1)
	u.log.Printf("offsite upload failed key=%s err=%v", key, err)
}

func (u *Uploader) key(localPath string) (string, error) {
	base, err := filepath.Abs(u.baseDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", abs, base)
	}
	return rel, nil
}
