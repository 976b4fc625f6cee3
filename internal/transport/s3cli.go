package transport

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"strings"
	"sync"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
)

// DefaultAWSCLI is the binary used when none is configured.
const DefaultAWSCLI = "aws"

// S3CLI talks to S3 through the aws command line tool, inheriting its
// credentials and region from the process environment.
type S3CLI struct {
	binary string
}

// NewS3CLI returns a backend invoking binary (DefaultAWSCLI when empty).
func NewS3CLI(binary string) *S3CLI {
	if binary == "" {
		binary = DefaultAWSCLI
	}
	return &S3CLI{binary: binary}
}

// bucketKey splits s3://bucket/key. The key is the path without its leading slash.
func bucketKey(remote *url.URL) (string, string, error) {
	bucket := remote.Host
	key := strings.TrimPrefix(remote.Path, "/")
	if bucket == "" || key == "" {
		return "", "", syncerrors.ConfigInvalid("remote", "s3 remote needs a bucket and a key: "+redact(remote))
	}
	return bucket, key, nil
}

// objectURL is the remote normalized to s3://bucket/key, as the cp command expects.
func objectURL(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

type objectAttributes struct {
	ETag string `json:"ETag"`
}

func (c *S3CLI) FetchVersionTag(ctx context.Context, remote *url.URL) (string, error) {
	bucket, key, err := bucketKey(remote)
	if err != nil {
		return "", err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary,
		"s3api", "get-object-attributes",
		"--bucket", bucket,
		"--key", key,
		"--object-attributes", "ETag",
	)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", syncerrors.TransportFailed("fetch version tag", redact(remote), commandError(err, &stderr))
	}

	var attrs objectAttributes
	if err := json.Unmarshal(out, &attrs); err != nil {
		return "", syncerrors.TransportFailed("fetch version tag", redact(remote), fmt.Errorf("decode attributes: %w", err))
	}
	if attrs.ETag == "" {
		return "", syncerrors.TransportFailed("fetch version tag", redact(remote), stderrors.New("response carries no ETag"))
	}
	return attrs.ETag, nil
}

func (c *S3CLI) Pull(ctx context.Context, remote *url.URL) (io.ReadCloser, error) {
	bucket, key, err := bucketKey(remote)
	if err != nil {
		return nil, err
	}

	rc := &commandReader{remote: redact(remote)}
	rc.cmd = exec.CommandContext(ctx, c.binary, "s3", "cp", "--quiet", objectURL(bucket, key), "-")
	rc.cmd.Stderr = &rc.stderr
	stdout, err := rc.cmd.StdoutPipe()
	if err != nil {
		return nil, syncerrors.InternalError("open aws stdout", err)
	}
	rc.stdout = stdout
	if err := rc.cmd.Start(); err != nil {
		return nil, syncerrors.TransportFailed("pull", rc.remote, err)
	}
	return rc, nil
}

func (c *S3CLI) Push(ctx context.Context, r io.Reader, remote *url.URL) error {
	bucket, key, err := bucketKey(remote)
	if err != nil {
		return err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary, "s3", "cp", "--quiet", "-", objectURL(bucket, key))
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return syncerrors.TransportFailed("push", redact(remote), err)
	}
	if err := cmd.Start(); err != nil {
		return syncerrors.TransportFailed("push", redact(remote), err)
	}

	src := &sourceReader{r: r}
	_, copyErr := io.Copy(stdin, src)
	if src.err != nil {
		// aws uploads whatever it got once stdin closes, so it must die first
		_ = cmd.Process.Kill()
		_ = stdin.Close()
		_ = cmd.Wait()
		return syncerrors.TransportFailed("push", redact(remote), fmt.Errorf("read archive: %w", src.err))
	}
	_ = stdin.Close()
	if err := cmd.Wait(); err != nil {
		return syncerrors.TransportFailed("push", redact(remote), commandError(err, &stderr))
	}
	if copyErr != nil {
		return syncerrors.TransportFailed("push", redact(remote), copyErr)
	}
	return nil
}

// sourceReader remembers the first read failure of the upload source, telling it
// apart from write failures towards the child.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}

// commandReader streams a child's stdout. A non-zero exit replaces io.EOF so a
// failed download never looks like a short, successful one.
type commandReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	remote string

	once    sync.Once
	waitErr error
}

func (r *commandReader) Read(p []byte) (int, error) {
	n, err := r.stdout.Read(p)
	if err == io.EOF {
		if werr := r.wait(); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (r *commandReader) Close() error {
	_ = r.stdout.Close()
	return r.wait()
}

func (r *commandReader) wait() error {
	r.once.Do(func() {
		if err := r.cmd.Wait(); err != nil {
			r.waitErr = syncerrors.TransportFailed("pull", r.remote, commandError(err, &r.stderr))
		}
	})
	return r.waitErr
}

func commandError(err error, stderr *bytes.Buffer) error {
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}
