package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeGetter struct {
	calls []s3.GetObjectInput
	body  string
	err   error
}

func (f *fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls = append(f.calls, *in)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestSource_OpenIssuesGetObjectPerPass(t *testing.T) {
	t.Parallel()

	fg := &fakeGetter{body: "name,age\nAda,36\n"}
	src := &Source{client: fg, bucket: "imports", key: "2024/people.csv"}

	for i := 0; i < 2; i++ {
		rc, err := src.Open(context.Background())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		if string(b) != fg.body {
			t.Fatalf("body=%q", b)
		}
	}

	if len(fg.calls) != 2 {
		t.Fatalf("GetObject calls=%d, want 2", len(fg.calls))
	}
	if aws.ToString(fg.calls[0].Bucket) != "imports" || aws.ToString(fg.calls[0].Key) != "2024/people.csv" {
		t.Fatalf("input=%+v", fg.calls[0])
	}
	if src.Name() != "s3://imports/2024/people.csv" {
		t.Fatalf("Name()=%q", src.Name())
	}
}

func TestSource_OpenWrapsError(t *testing.T) {
	t.Parallel()

	boom := errors.New("NoSuchKey")
	src := &Source{client: &fakeGetter{err: boom}, bucket: "b", key: "k"}
	if _, err := src.Open(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err=%v, want wrapped %v", err, boom)
	}
}
