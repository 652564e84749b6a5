package s3

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"shieldcore/internal/blob/core"
)

func TestFakeCreateStatLoad(t *testing.T) {
	ctx := context.Background()
	store := NewFake()
	if store.Driver() != core.DriverS3 {
		t.Fatalf("expected s3 driver")
	}
	payload := []byte("source:\n  - name: cs\n")
	obj, err := store.Create(ctx, "backups/shield.1.yaml", "shield", payload)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if obj.Size != int64(len(payload)) || obj.Document != "shield" || obj.Checksum != core.Checksum(payload) {
		t.Fatalf("metadata lost on the round trip: %+v", obj)
	}
	if obj.Modified.IsZero() {
		t.Fatalf("expected modification time")
	}
	got, data, err := store.Load(ctx, obj.Key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("unexpected payload %q", data)
	}
	if err := core.Verify(got, data); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestFakeCreateIsConditional(t *testing.T) {
	ctx := context.Background()
	store := NewFake()
	if _, err := store.Create(ctx, "k.yaml", "", []byte("one")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Create(ctx, "k.yaml", "", []byte("two")); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	_, data, err := store.Load(ctx, "k.yaml")
	if err != nil || string(data) != "one" {
		t.Fatalf("object replaced: %q %v", data, err)
	}
	if _, err := store.Create(ctx, "a/../b", "", nil); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestFakeMissingKeys(t *testing.T) {
	ctx := context.Background()
	store := NewFake()
	if _, err := store.Stat(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("stat: %v", err)
	}
	if _, _, err := store.Load(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("load: %v", err)
	}
	if err := store.Remove(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("remove: %v", err)
	}
}

func TestFakeListPaginates(t *testing.T) {
	ctx := context.Background()
	store := NewFake()
	for i := 4; i >= 0; i-- {
		key := fmt.Sprintf("backups/shield.%d.yaml", i)
		if _, err := store.Create(ctx, key, "shield", []byte(key)); err != nil {
			t.Fatalf("create %s: %v", key, err)
		}
	}
	if _, err := store.Create(ctx, "other/x.yaml", "", []byte("x")); err != nil {
		t.Fatalf("create: %v", err)
	}
	objs, err := store.List(ctx, "backups/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(objs) != 5 {
		t.Fatalf("expected 5 objects across pages, got %d", len(objs))
	}
	for i, obj := range objs {
		if want := fmt.Sprintf("backups/shield.%d.yaml", i); obj.Key != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, obj.Key)
		}
	}
	if err := store.Remove(ctx, objs[0].Key); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if left, _ := store.List(ctx, "backups/"); len(left) != 4 {
		t.Fatalf("expected 4 after remove, got %d", len(left))
	}
	if none, err := store.List(ctx, "nothing/"); err != nil || len(none) != 0 {
		t.Fatalf("empty prefix: %d %v", len(none), err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
	store, err := New(context.Background(), Config{
		Bucket:          "backups",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		PathStyle:       true,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if store.bucket != "backups" {
		t.Fatalf("unexpected bucket %q", store.bucket)
	}
}

func TestDecodeAWSChunked(t *testing.T) {
	framed := "5;chunk-signature=abc\r\nhello\r\n6\r\n world\r\n0\r\nx-amz-checksum-crc32:AAAAAA==\r\n\r\n"
	got, err := decodeAWSChunked([]byte(framed))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("unexpected body %q", got)
	}
	if _, err := decodeAWSChunked([]byte("zz\r\nhello\r\n")); err == nil {
		t.Fatalf("expected size error")
	}
	if _, err := decodeAWSChunked([]byte("9\r\nshort")); err == nil {
		t.Fatalf("expected truncated body error")
	}
}

func TestTranslatePassesOtherErrors(t *testing.T) {
	if translate(nil, "k") != nil {
		t.Fatalf("nil must stay nil")
	}
	base := errors.New("connection reset")
	err := translate(base, "k")
	if !errors.Is(err, base) || errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unexpected translation %v", err)
	}
}
