// Package verify talks to the external photo verification service. The
// service is an opaque collaborator: it gets a photo and eventually answers
// approved, rejected or pending with a confidence and reasoning.
package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/moimapp/moim-server/pkg/request"
)

const (
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusPending  = "pending"
)

// ErrUnavailable covers network failures and non-2xx answers from the
// verification service. It is distinct from a rejection so the caller can
// offer a retry instead of treating the mission as denied.
var ErrUnavailable = errors.New("verification service unavailable")

type Result struct {
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

type Client struct {
	url     string
	token   string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

func NewClient(url, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		url:     url,
		token:   token,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		logger:  slog.Default().With("logger", "verify"),
	}
}

// Check submits a photo for verification. A slow service is not an error: on
// timeout the result is pending and the caller is expected to poll later. A
// timeout never approves anything.
func (c *Client) Check(ctx context.Context, uid, fileName string, photo []byte) (*Result, error) {
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)

	if err := w.WriteField("uid", uid); err != nil {
		return nil, err
	}

	fw, err := w.CreateFormFile("photo", fileName)
	if err != nil {
		return nil, err
	}

	if _, err := fw.Write(photo); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res := new(Result)

	err = request.New(c.client, c.logger).
		URL(c.url + "/verify").
		Post().
		Token(c.token).
		Headers(map[string]string{"Content-Type": w.FormDataContentType()}).
		Body(body).
		GetJSON(ctx, res)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.logger.Warn("verification timed out, treating as pending", slog.String("uid", uid))

			return &Result{Status: StatusPending}, nil
		}

		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
	}

	return checkStatus(res)
}

// Status polls the service for the outcome of an earlier pending check.
func (c *Client) Status(ctx context.Context, uid string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res := new(Result)

	err := request.New(c.client, c.logger).
		URL(c.url + "/status").
		Token(c.token).
		Args(map[string]string{"uid": uid}).
		GetJSON(ctx, res)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &Result{Status: StatusPending}, nil
		}

		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
	}

	return checkStatus(res)
}

func checkStatus(res *Result) (*Result, error) {
	switch res.Status {
	case StatusApproved, StatusRejected, StatusPending:
		return res, nil
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrUnavailable, res.Status)
	}
}
