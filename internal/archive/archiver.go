package archive

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thermalink/thermalink/internal/db"
)

// Archiver moves finished jobs older than the retention window out of
// the live database into monthly gzipped JSON files.
type Archiver struct {
	archivePath string
	archiveDays int
	log         *logrus.Entry
	stopCh      chan struct{}
	mu          sync.Mutex
}

type ArchiveFile struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	DateRange string    `json:"date_range"`
}

type Config struct {
	ArchivePath string
	ArchiveDays int
}

func NewArchiver(cfg Config, log *logrus.Logger) (*Archiver, error) {
	if cfg.ArchivePath == "" {
		cfg.ArchivePath = "./data/archives"
	}
	if cfg.ArchiveDays <= 0 {
		cfg.ArchiveDays = 30
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	if err := os.MkdirAll(cfg.ArchivePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &Archiver{
		archivePath: cfg.ArchivePath,
		archiveDays: cfg.ArchiveDays,
		log:         log.WithField("component", "archive"),
		stopCh:      make(chan struct{}),
	}, nil
}

func (a *Archiver) Start() {
	go a.runDailyArchive()
}

func (a *Archiver) Stop() {
	close(a.stopCh)
}

func (a *Archiver) runDailyArchive() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			if err := a.RunArchive(context.Background()); err != nil {
				a.log.WithError(err).Error("archive run failed")
			}
		}
	}
}

// RunArchive exports every terminal job older than the retention window
// and deletes the rows only after the file is safely on disk.
func (a *Archiver) RunArchive(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -a.archiveDays)

	jobs, err := db.Jobs.ListArchivable(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to get jobs for archival: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	filename := fmt.Sprintf("archive_%s.json.gz", time.Now().Format("2006_01"))
	path := filepath.Join(a.archivePath, filename)

	if err := a.appendToArchive(path, jobs); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	for _, job := range jobs {
		if err := db.Jobs.Delete(ctx, job.ID); err != nil {
			return fmt.Errorf("failed to delete archived job %d: %w", job.ID, err)
		}
	}

	a.log.WithFields(logrus.Fields{
		"jobs": len(jobs),
		"file": filename,
	}).Info("jobs archived")
	return nil
}

// appendToArchive merges the new batch into the month's existing file
// so repeated runs in one month produce a single archive.
func (a *Archiver) appendToArchive(path string, jobs []*db.PrintJob) error {
	existing, err := a.readArchive(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	existing = append(existing, jobs...)

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(f)
	enc := json.NewEncoder(gz)
	if err := enc.Encode(existing); err != nil {
		gz.Close()
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := gz.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}

func (a *Archiver) readArchive(path string) ([]*db.PrintJob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	var jobs []*db.PrintJob
	if err := json.NewDecoder(gz).Decode(&jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (a *Archiver) ListArchives() ([]*ArchiveFile, error) {
	files, err := os.ReadDir(a.archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var archives []*ArchiveFile
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json.gz") {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		af := &ArchiveFile{
			Filename:  file.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		}
		if strings.HasPrefix(file.Name(), "archive_") {
			datePart := strings.TrimPrefix(file.Name(), "archive_")
			af.DateRange = strings.TrimSuffix(datePart, ".json.gz")
		}
		archives = append(archives, af)
	}
	return archives, nil
}

func (a *Archiver) DeleteArchive(filename string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if filename != filepath.Base(filename) {
		return fmt.Errorf("invalid archive filename")
	}

	path := filepath.Join(a.archivePath, filename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("archive not found")
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	return nil
}
