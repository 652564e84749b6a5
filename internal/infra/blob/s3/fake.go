package s3

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	fakeBucketName = "shieldcore-fake"
	// fakePageSize keeps listings short so pagination is exercised.
	fakePageSize = 2
)

// NewFake returns a Store whose client talks to an in-process bucket instead
// of the network. It understands the requests Store issues and nothing else.
func NewFake() *Store {
	bucket := &fakeBucket{objects: make(map[string]fakeObject), now: time.Now}
	client := s3.New(s3.Options{
		Region:                     "us-east-1",
		Credentials:                credentials.NewStaticCredentialsProvider("fake", "fake", ""),
		BaseEndpoint:               aws.String("https://s3.fake.invalid"),
		UsePathStyle:               true,
		HTTPClient:                 &http.Client{Transport: bucket},
		Retryer:                    aws.NopRetryer{},
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
	return &Store{client: client, bucket: fakeBucketName}
}

type fakeObject struct {
	data     []byte
	meta     map[string]string
	modified time.Time
}

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	now     func() time.Time
}

func (b *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := strings.TrimPrefix(req.URL.Path, "/"+fakeBucketName)
	key = strings.TrimPrefix(key, "/")
	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		return b.list(req)
	case req.Method == http.MethodHead:
		return b.head(key), nil
	case req.Method == http.MethodGet:
		return b.get(key), nil
	case req.Method == http.MethodPut:
		return b.put(req, key)
	case req.Method == http.MethodDelete:
		delete(b.objects, key)
		return reply(http.StatusNoContent, nil, nil), nil
	}
	return reply(http.StatusNotImplemented, nil, nil), nil
}

func (b *fakeBucket) put(req *http.Request, key string) (*http.Response, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
		if body, err = decodeAWSChunked(body); err != nil {
			return nil, err
		}
	}
	if _, taken := b.objects[key]; taken && req.Header.Get("If-None-Match") == "*" {
		return errorReply(http.StatusPreconditionFailed, "PreconditionFailed"), nil
	}
	meta := make(map[string]string)
	for name, values := range req.Header {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "x-amz-meta-") && len(values) > 0 {
			meta[strings.TrimPrefix(lower, "x-amz-meta-")] = values[0]
		}
	}
	b.objects[key] = fakeObject{data: body, meta: meta, modified: b.now().UTC().Truncate(time.Second)}
	return reply(http.StatusOK, nil, http.Header{"Etag": {`"fake"`}}), nil
}

func (b *fakeBucket) head(key string) *http.Response {
	obj, ok := b.objects[key]
	if !ok {
		return reply(http.StatusNotFound, nil, nil)
	}
	return reply(http.StatusOK, nil, obj.header())
}

func (b *fakeBucket) get(key string) *http.Response {
	obj, ok := b.objects[key]
	if !ok {
		return errorReply(http.StatusNotFound, "NoSuchKey")
	}
	return reply(http.StatusOK, obj.data, obj.header())
}

type fakeListing struct {
	XMLName               xml.Name `xml:"ListBucketResult"`
	Name                  string
	Prefix                string
	KeyCount              int
	IsTruncated           bool
	NextContinuationToken string `xml:",omitempty"`
	Contents              []fakeListEntry
}

type fakeListEntry struct {
	Key          string
	Size         int
	LastModified string
}

// list pages by key; the continuation token is the last key of the
// previous page.
func (b *fakeBucket) list(req *http.Request) (*http.Response, error) {
	q := req.URL.Query()
	prefix, after := q.Get("prefix"), q.Get("continuation-token")
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) && k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	res := fakeListing{Name: fakeBucketName, Prefix: prefix}
	if len(keys) > fakePageSize {
		keys = keys[:fakePageSize]
		res.IsTruncated = true
		res.NextContinuationToken = keys[len(keys)-1]
	}
	for _, k := range keys {
		obj := b.objects[k]
		res.Contents = append(res.Contents, fakeListEntry{
			Key:          k,
			Size:         len(obj.data),
			LastModified: obj.modified.Format(time.RFC3339),
		})
	}
	res.KeyCount = len(res.Contents)
	raw, err := xml.Marshal(res)
	if err != nil {
		return nil, err
	}
	return reply(http.StatusOK, raw, http.Header{"Content-Type": {"application/xml"}}), nil
}

func (o fakeObject) header() http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(o.data))},
		"Content-Type":   {"application/yaml"},
		"Last-Modified":  {o.modified.Format(http.TimeFormat)},
		"Etag":           {`"fake"`},
	}
	for k, v := range o.meta {
		h.Set("X-Amz-Meta-"+k, v)
	}
	return h
}

func reply(status int, body []byte, h http.Header) *http.Response {
	if h == nil {
		h = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func errorReply(status int, code string) *http.Response {
	body := fmt.Sprintf("<Error><Code>%s</Code><Message>%s</Message></Error>", code, http.StatusText(status))
	return reply(status, []byte(body), http.Header{"Content-Type": {"application/xml"}})
}

// decodeAWSChunked strips aws-chunked framing: hex size lines, optional
// ";chunk-signature" extensions and trailing headers after the zero chunk.
func decodeAWSChunked(raw []byte) ([]byte, error) {
	r := bufio.NewReader(bytes.NewReader(raw))
	var out []byte
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("chunk header: %w", err)
		}
		field, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		n, err := strconv.ParseInt(field, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("chunk size %q: %w", field, err)
		}
		if n == 0 {
			return out, nil
		}
		chunk := make([]byte, n)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, fmt.Errorf("chunk body: %w", err)
		}
		out = append(out, chunk...)
		if _, err := r.Discard(2); err != nil {
			return nil, fmt.Errorf("chunk terminator: %w", err)
		}
	}
}
