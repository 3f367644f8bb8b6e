package mirror

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/bianoble/glance-stream-sync/internal/source"
)

const (
	// DefaultBinary is the simplestreams glance mirror command.
	DefaultBinary = "sstream-mirror-glance"

	// ExitTempFail is EX_TEMPFAIL from sysexits.h. The engine exits with it
	// when a catalog or storage client failed in a retryable way.
	ExitTempFail = 75

	stderrTail = 4096
)

// passEnv lists the variables of our own environment the engine inherits.
// Credentials and proxies are never inherited; they come from Credentials
// and ExtraEnv.
var passEnv = []string{"PATH", "HOME", "LANG", "LC_ALL", "TMPDIR"}

// ExecEngine runs the external mirror command once per job.
type ExecEngine struct {
	Binary  string
	Keyring string

	// Credentials returns OS_* variables for region, normally
	// (*identity.Session).Env.
	Credentials func(region string) []string

	// ExtraEnv is appended after the credentials, typically proxy settings.
	ExtraEnv []string

	Logger *zap.Logger
}

// Sync runs the command and waits for it. With a non-nil progress the
// command is asked for JSON progress lines on stdout.
func (e *ExecEngine) Sync(ctx context.Context, job Job, progress ProgressFunc) error {
	logger := e.logger().With(zap.String("mirror", job.Name))

	bin := e.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	args := e.Args(job, progress != nil)

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = e.env(job.Region)
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%s: %w", bin, err)
	}

	logger.Info("starting mirror engine", zap.String("binary", bin), zap.Strings("args", args))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", bin, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if progress != nil {
			if ev, ok := parseProgressLine(line); ok {
				progress(ev)
				continue
			}
		}
		logger.Debug(line)
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("reading engine output", zap.Error(err))
		// Drain so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, stdout)
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if exitErr.ExitCode() == ExitTempFail {
				return fmt.Errorf("%s exited with status %d: %s: %w", bin, ExitTempFail, msg, errdefs.ErrUnavailable)
			}
			return fmt.Errorf("%s exited with status %d: %s", bin, exitErr.ExitCode(), msg)
		}
		return fmt.Errorf("running %s: %w", bin, err)
	}
	return nil
}

// Args renders the command line for job.
func (e *ExecEngine) Args(job Job, progress bool) []string {
	args := []string{
		"--max=" + strconv.Itoa(job.MaxItems),
		"--path=" + job.Path,
		"--content-id=" + job.ContentID,
		"--region=" + job.Region,
		"--cloud-name=" + job.CloudName,
		"--name-prefix=" + job.NamePrefix,
	}
	if e.Keyring != "" {
		args = append(args, "--keyring="+e.Keyring)
	}
	if job.ObjectStore != "" {
		args = append(args, "--output-swift="+job.ObjectStore)
	}
	for _, h := range job.Hooks {
		args = append(args, "--modify-hook="+h)
	}
	if progress {
		args = append(args, "--progress")
	}
	args = append(args, job.Source)
	args = append(args, job.Filters...)
	return args
}

func (e *ExecEngine) env(region string) []string {
	var env []string
	for _, k := range passEnv {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	if e.Credentials != nil {
		env = append(env, e.Credentials(region)...)
	}
	return append(env, e.ExtraEnv...)
}

func (e *ExecEngine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// ProgressExecEngine adds a native dry pass to ExecEngine so the runner can
// report progress against a known total.
type ProgressExecEngine struct {
	*ExecEngine
	Reader *source.StreamReader
}

// Plan lists the items job would transfer.
func (e *ProgressExecEngine) Plan(ctx context.Context, job Job) ([]source.Item, error) {
	listing, err := e.Reader.Read(ctx, job.Stream())
	if err != nil {
		return nil, err
	}
	return listing.Items, nil
}

// parseProgressLine reads one JSON progress record. Records either carry a
// "key" or the simplestreams product_name, version_name and item_name.
func parseProgressLine(line string) (ProgressEvent, bool) {
	if !gjson.Valid(line) {
		return ProgressEvent{}, false
	}
	r := gjson.Parse(line)
	if !r.IsObject() {
		return ProgressEvent{}, false
	}

	key := r.Get("key").String()
	if key == "" {
		fields := gjson.GetMany(line, "product_name", "version_name", "item_name")
		if fields[0].String() == "" || fields[2].String() == "" {
			return ProgressEvent{}, false
		}
		key = fields[0].String() + "/" + fields[1].String() + "/" + fields[2].String()
	}
	return ProgressEvent{Key: key, Bytes: r.Get("size").Int()}, true
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
