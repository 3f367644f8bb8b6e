package engine

import (
	"errors"

	"github.com/bianoble/glance-stream-sync/internal/config"
)

// Check reports whether both configuration documents are ready, listing
// every problem in each. It makes no network calls and takes no lock.
func Check(paths config.Paths) (*CheckResult, error) {
	result := &CheckResult{}

	id, err := config.LoadIdentity(paths.Identity)
	idCheck, err := documentCheck(paths.Identity, err)
	if err != nil {
		return nil, err
	}

	m, err := config.LoadMirrors(paths.Mirrors)
	mCheck, err := documentCheck(paths.Mirrors, err)
	if err != nil {
		return nil, err
	}

	result.Documents = []DocumentCheck{idCheck, mCheck}
	result.Ready = idCheck.Ready && mCheck.Ready
	if result.Ready {
		result.Loaded = &config.Loaded{Identity: *id, Mirrors: *m}
	}
	return result, nil
}

func documentCheck(path string, err error) (DocumentCheck, error) {
	if err == nil {
		return DocumentCheck{Path: path, Ready: true}, nil
	}
	var nr *config.NotReadyError
	if !errors.As(err, &nr) {
		return DocumentCheck{}, err
	}
	return DocumentCheck{Path: path, Problems: nr.Problems}, nil
}
