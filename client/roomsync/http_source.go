package roomsync

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"PMarket/tools/errs"
)

// HTTPSource reads rooms and offers from the gateway's REST routes.
type HTTPSource struct {
	client *resty.Client
}

func NewHTTPSource(baseURL, token string, timeout time.Duration) *HTTPSource {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	if token != "" {
		c.SetAuthToken(token)
	}
	return &HTTPSource{client: c}
}

// Client exposes the underlying resty client, e.g. for tests or extra headers.
func (s *HTTPSource) Client() *resty.Client { return s.client }

func (s *HTTPSource) ListMessages(ctx context.Context, room string) ([]Message, error) {
	var out []Message
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("room", room).
		SetResult(&out).
		SetError(&errs.CodeError{}).
		Get("/api/rooms/{room}/messages")
	if err := check(resp, err, "room", room); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *HTTPSource) GetOffer(ctx context.Context, id string) (*Offer, error) {
	var out Offer
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		SetError(&errs.CodeError{}).
		Get("/api/offers/{id}")
	if err := check(resp, err, "offer", id); err != nil {
		return nil, err
	}
	return &out, nil
}

func check(resp *resty.Response, err error, kv ...any) error {
	if err != nil {
		return errs.WrapMsg(err, "request failed", kv...)
	}
	if !resp.IsError() {
		return nil
	}
	if ce, ok := resp.Error().(*errs.CodeError); ok && ce.Code != 0 {
		return ce.WrapMsg("", kv...)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return errs.ErrRecordNotFound.WrapMsg("", kv...)
	}
	return errs.ErrInternal.WrapMsg(resp.Status(), kv...)
}
