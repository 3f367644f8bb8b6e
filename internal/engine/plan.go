package engine

import (
	"context"
	"errors"
	"io/fs"

	"github.com/ProtonMail/go-crypto/openpgp"
	"go.uber.org/zap"

	"github.com/bianoble/glance-stream-sync/internal/config"
	"github.com/bianoble/glance-stream-sync/internal/httpclient"
	"github.com/bianoble/glance-stream-sync/internal/mirror"
	"github.com/bianoble/glance-stream-sync/internal/source"
)

// PlanEntry is the dry-pass listing of one mirror entry.
type PlanEntry struct {
	Mirror  string
	Listing *source.Listing
	Err     error
}

// Plan lists what each configured mirror entry would transfer. It reads the
// configuration and the upstream stream metadata only; keystone and the
// image service are not contacted and no lock is taken.
func Plan(ctx context.Context, paths config.Paths, client httpclient.Doer, logger *zap.Logger) ([]PlanEntry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loaded, err := config.LoadAll(paths)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = httpclient.New(proxyOptions(loaded.Identity))
	}

	keyring, _ := loadKeyring(paths.Keyring, logger)
	reader := newStreamReader(client, keyring)

	var entries []PlanEntry
	for _, m := range loaded.Mirrors.MirrorList {
		job := mirror.Job{
			Name:     m.Name(),
			Source:   m.URL,
			Path:     m.Path,
			MaxItems: m.Max,
			Filters:  m.ItemFilters,
		}
		listing, err := reader.Read(ctx, job.Stream())
		if err != nil {
			logger.Warn("dry pass failed", zap.String("mirror", job.Name), zap.Error(err))
		}
		entries = append(entries, PlanEntry{Mirror: job.Name, Listing: listing, Err: err})
	}
	return entries, nil
}

// loadKeyring reads the signing keyring. A missing keyring is reported as
// absent rather than as an error: unsigned streams still work without one.
func loadKeyring(path string, logger *zap.Logger) (openpgp.EntityList, bool) {
	keyring, err := mirror.LoadKeyring(path)
	switch {
	case err == nil:
		return keyring, true
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("no keyring installed; signed indexes cannot be verified", zap.String("keyring", path))
	default:
		logger.Warn("loading keyring", zap.Error(err))
	}
	return nil, false
}

func newStreamReader(client httpclient.Doer, keyring openpgp.EntityList) *source.StreamReader {
	return &source.StreamReader{
		Registry: source.DefaultRegistry(&source.URLReader{Client: client}),
		Policy:   mirror.NewPolicy(keyring),
	}
}
