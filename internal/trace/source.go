// Package trace loads captured I/O patterns into schedulable operations.
package trace

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang/snappy"

	"github.com/TritonDataCenter/toshstomp/internal/config"
	"github.com/TritonDataCenter/toshstomp/internal/errors"
)

// snappyMagic is the stream identifier chunk that opens a framed snappy
// stream. Archived captures are stored in that framing.
const snappyMagic = "\xff\x06\x00\x00sNaPpY"

// OpenSource opens the configured trace stream. An empty path or "-"
// reads standard input, an s3:// URL fetches the object, anything else
// opens a local file. Streams that begin with the snappy framing magic
// are decompressed transparently.
func OpenSource(ctx context.Context, cfg config.TraceConfig) (io.ReadCloser, error) {
	var (
		rc  io.ReadCloser
		err error
	)

	switch {
	case cfg.Path == "" || cfg.Path == "-":
		rc, err = stdinSource()
	case strings.HasPrefix(cfg.Path, "s3://"):
		rc, err = s3Source(ctx, cfg)
	default:
		rc, err = fileSource(cfg.Path)
	}
	if err != nil {
		return nil, err
	}

	return sniff(rc), nil
}

// sniff peeks at the stream head and inserts a snappy reader when the
// framing magic is present.
func sniff(rc io.ReadCloser) io.ReadCloser {
	br := bufio.NewReaderSize(rc, 64*1024)
	head, err := br.Peek(len(snappyMagic))
	if err == nil && string(head) == snappyMagic {
		return &streamReader{r: snappy.NewReader(br), c: rc}
	}
	return &streamReader{r: br, c: rc}
}

// streamReader pairs a possibly-wrapped reader with the closer that owns
// the underlying stream.
type streamReader struct {
	r io.Reader
	c io.Closer
}

func (s *streamReader) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *streamReader) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}

// stdinSource returns standard input, refusing an interactive terminal.
func stdinSource() (io.ReadCloser, error) {
	st, err := os.Stdin.Stat()
	if err == nil && st.Mode()&os.ModeCharDevice != 0 {
		return nil, errors.NewParseError(errors.CodeTerminalInput,
			"replay log cannot be a terminal")
	}
	return io.NopCloser(os.Stdin), nil
}

// fileSource opens a local trace file.
func fileSource(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryParse, errors.CodeSourceUnavailable,
			fmt.Sprintf("open replay log %q", path), err)
	}
	return f, nil
}

// s3Source fetches the trace object named by an s3://bucket/key URL.
// The SDK's automatic retries are disabled; the fetch is attempted once.
func s3Source(ctx context.Context, cfg config.TraceConfig) (io.ReadCloser, error) {
	bucket, key, err := parseS3URL(cfg.Path)
	if err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if cfg.S3.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryParse, errors.CodeSourceUnavailable,
			"failed to load AWS config", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.S3.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		})
	}
	if cfg.S3.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryParse, errors.CodeSourceUnavailable,
			fmt.Sprintf("fetch %s", cfg.Path), err)
	}

	return resp.Body, nil
}

// parseS3URL splits s3://bucket/key into its parts.
func parseS3URL(raw string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(raw, "s3://")
	idx := strings.IndexByte(rest, '/')
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", errors.NewUsageError(fmt.Sprintf("invalid s3 trace URL %q", raw))
	}
	return rest[:idx], rest[idx+1:], nil
}
