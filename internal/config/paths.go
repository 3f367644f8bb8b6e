package config

import "path/filepath"

const (
	// DefaultConfDir is where the charm hooks write both documents.
	DefaultConfDir = "/etc/glance-simplestreams-sync"

	// EnvConfDir overrides DefaultConfDir.
	EnvConfDir = "SIMPLESTREAMS_GLANCE_SYNC_CONF_DIR"

	// DefaultLogFile is the append-only run log.
	DefaultLogFile = "/var/log/glance-simplestreams-sync.log"

	// DefaultTrigger is the every-minute cron file installed for fast polling.
	DefaultTrigger = "/etc/cron.d/glance_simplestreams_sync_fastpoll"

	// DefaultStateDir holds the last-run record.
	DefaultStateDir = "/var/lib/glance-simplestreams-sync"

	// DefaultKeyring verifies signed stream indexes.
	DefaultKeyring = "/usr/share/keyrings/ubuntu-cloudimage-keyring.gpg"

	identityFileName = "identity.yaml"
	mirrorsFileName  = "mirrors.yaml"
	lockFileName     = "sync-running.pid"
)

// Paths holds every fixed filesystem location the job touches.
type Paths struct {
	ConfDir  string
	Identity string
	Mirrors  string
	Lock     string
	LogFile  string
	Trigger  string
	StateDir string
	Keyring  string
}

// PathsFor derives the document and lock paths from confDir and fills the
// remaining locations with their defaults.
func PathsFor(confDir string) Paths {
	if confDir == "" {
		confDir = DefaultConfDir
	}
	return Paths{
		ConfDir:  confDir,
		Identity: filepath.Join(confDir, identityFileName),
		Mirrors:  filepath.Join(confDir, mirrorsFileName),
		Lock:     filepath.Join(confDir, lockFileName),
		LogFile:  DefaultLogFile,
		Trigger:  DefaultTrigger,
		StateDir: DefaultStateDir,
		Keyring:  DefaultKeyring,
	}
}
