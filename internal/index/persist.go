package index

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/marulab/recall/internal/db"
	"github.com/marulab/recall/pkg/models"
)

const (
	manifestFile = "index.json"
	databaseFile = "documents.db"
	backupsDir   = "backups"

	backupStamp = "20060102-150405"
)

// manifest is the JSON header of a snapshot directory. The document set
// itself lives in the sqlite database next to it.
type manifest struct {
	Config    Config    `json:"config"`
	Documents int       `json:"documents"`
	SavedAt   time.Time `json:"saved_at"`
}

// Save writes a consistent snapshot to the index directory: index.json with
// the config, documents.db with the full document set. The in-memory state
// is captured under the read lock; disk writes happen after it is released,
// so concurrent searches are not blocked by IO. The previous snapshot is
// moved into backups/<timestamp>/ first, and backups older than the
// retention window are pruned.
func (ix *Index) Save(ctx context.Context) error {
	if ix.dir == "" {
		return fmt.Errorf("save index: no snapshot directory configured")
	}

	ix.mu.RLock()
	live := ix.docs.All()
	docs := make([]*models.Document, 0, len(live))
	for _, doc := range live {
		snap := *doc
		docs = append(docs, &snap)
	}
	man := manifest{
		Config:    ix.cfg,
		Documents: len(docs),
		SavedAt:   time.Now().UTC(),
	}
	ix.mu.RUnlock()

	if err := os.MkdirAll(ix.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if err := ix.backupCurrent(); err != nil {
		return err
	}

	store, err := db.Open(filepath.Join(ix.dir, databaseFile))
	if err != nil {
		return fmt.Errorf("open snapshot db: %w", err)
	}
	defer store.Close()
	if err := store.ReplaceAll(ctx, docs); err != nil {
		return fmt.Errorf("write documents: %w", err)
	}

	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp := filepath.Join(ix.dir, manifestFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(ix.dir, manifestFile)); err != nil {
		return fmt.Errorf("commit manifest: %w", err)
	}

	if err := ix.pruneBackups(); err != nil {
		log.Warn().Err(err).Msg("Backup pruning failed")
	}

	log.Info().
		Int("documents", len(docs)).
		Str("dir", ix.dir).
		Msg("Index saved")
	return nil
}

// backupCurrent copies the existing snapshot files, if any, into a
// timestamped directory under backups/.
func (ix *Index) backupCurrent() error {
	src := filepath.Join(ix.dir, manifestFile)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}

	dst := filepath.Join(ix.dir, backupsDir, time.Now().UTC().Format(backupStamp))
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	for _, name := range []string{manifestFile, databaseFile} {
		if err := copyFile(filepath.Join(ix.dir, name), filepath.Join(dst, name)); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("backup %s: %w", name, err)
		}
	}
	return nil
}

// pruneBackups deletes backup directories older than the retention window.
func (ix *Index) pruneBackups() error {
	if ix.cfg.BackupRetentionDays <= 0 {
		return nil
	}
	root := filepath.Join(ix.dir, backupsDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -ix.cfg.BackupRetentionDays)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		stamp, err := time.Parse(backupStamp, entry.Name())
		if err != nil {
			continue
		}
		if stamp.Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
				return err
			}
			log.Debug().Str("backup", entry.Name()).Msg("Pruned expired backup")
		}
	}
	return nil
}

// Open loads the index from dir, or returns a fresh empty index when no
// usable snapshot exists. A corrupt snapshot is logged and discarded rather
// than failing startup.
func Open(ctx context.Context, cfg Config, dir string) (*Index, error) {
	ix, err := New(cfg, dir)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return ix, nil
	}

	if err := ix.load(ctx); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Snapshot unusable, starting empty")
		fresh, ferr := New(cfg, dir)
		if ferr != nil {
			return nil, ferr
		}
		return fresh, nil
	}
	return ix, nil
}

// load restores documents from the snapshot directory. Vectors are re-added
// to the ANN structure rather than deserialized, so a loaded index is
// equivalent to one built by the same insert sequence.
func (ix *Index) load(ctx context.Context) error {
	manPath := filepath.Join(ix.dir, manifestFile)
	data, err := os.ReadFile(manPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var man manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	if man.Config.Dimension != ix.cfg.Dimension {
		return fmt.Errorf("dimension mismatch: snapshot %d, config %d",
			man.Config.Dimension, ix.cfg.Dimension)
	}

	store, err := db.Open(filepath.Join(ix.dir, databaseFile))
	if err != nil {
		return fmt.Errorf("open snapshot db: %w", err)
	}
	defer store.Close()

	docs, err := store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, doc := range docs {
		if err := ix.docs.Restore(doc); err != nil {
			return fmt.Errorf("restore %s: %w", doc.DocID, err)
		}
		ix.backend.add(doc.VectorID, doc.Embedding)
		ix.keywords.Add(doc.VectorID, doc.Content)
	}
	if err := ix.maybeTrainLocked(ctx); err != nil {
		return err
	}

	log.Info().
		Int("documents", len(docs)).
		Str("dir", ix.dir).
		Msg("Index loaded")
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
