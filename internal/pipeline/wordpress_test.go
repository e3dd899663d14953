package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressline/pressline/internal/config"
)

func publisherConfig(url string) config.PublisherConfig {
	return config.PublisherConfig{
		BaseURL:       url,
		Username:      "editor",
		AppPassword:   "secret",
		Timeout:       5 * time.Second,
		RatePerMinute: 600,
		PostStatus:    "publish",
	}
}

func TestWordPressPublisher_Publish(t *testing.T) {
	var gotUser, gotPass string
	var gotReq wpPostRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		require.Equal(t, "/wp/v2/posts", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(wpPostResponse{ID: 42, Link: "https://blog.example.com/?p=42"})
	}))
	defer srv.Close()

	p := NewWordPressPublisher(publisherConfig(srv.URL))
	ref, err := p.Publish(context.Background(), &Draft{Title: "On Gophers", Body: "<p>Gophers dig.</p>"})
	require.NoError(t, err)

	assert.Equal(t, "42", ref.ID)
	assert.Equal(t, "https://blog.example.com/?p=42", ref.URL)
	assert.Equal(t, "editor", gotUser)
	assert.Equal(t, "secret", gotPass)
	assert.Equal(t, "publish", gotReq.Status)
}

func TestWordPressPublisher_SanitizesBody(t *testing.T) {
	var gotReq wpPostRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(wpPostResponse{ID: 1})
	}))
	defer srv.Close()

	p := NewWordPressPublisher(publisherConfig(srv.URL))
	draft := &Draft{
		Title: "t",
		Body:  `<p>fine</p><script>alert("nope")</script><p onclick="evil()">also fine</p>`,
	}
	_, err := p.Publish(context.Background(), draft)
	require.NoError(t, err)

	assert.NotContains(t, gotReq.Content, "<script>")
	assert.NotContains(t, gotReq.Content, "onclick")
	assert.Contains(t, gotReq.Content, "<p>fine</p>")
}

func TestWordPressPublisher_CMSError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code": "rest_cannot_create", "message": "Sorry, you are not allowed"}`))
	}))
	defer srv.Close()

	p := NewWordPressPublisher(publisherConfig(srv.URL))
	_, err := p.Publish(context.Background(), &Draft{Title: "t", Body: "<p>b</p>"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestPipeline_Run(t *testing.T) {
	gen := &fakeGenerator{draft: &Draft{Title: "t", Body: "b"}}
	pub := &fakePublisher{ref: &PostRef{ID: "7"}}
	p := New(gen, pub)

	ref, err := p.Run(context.Background(), "topic")
	require.NoError(t, err)
	assert.Equal(t, "7", ref.ID)
	assert.Equal(t, "topic", gen.gotTopic)
	assert.Equal(t, "t", pub.gotDraft.Title)
}

func TestPipeline_Run_GenerateFails(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	pub := &fakePublisher{ref: &PostRef{ID: "7"}}
	p := New(gen, pub)

	_, err := p.Run(context.Background(), "topic")
	require.Error(t, err)
	assert.False(t, pub.called, "publisher must not run when generation fails")
}

type fakeGenerator struct {
	draft    *Draft
	err      error
	gotTopic string
}

func (f *fakeGenerator) Generate(_ context.Context, topic string) (*Draft, error) {
	f.gotTopic = topic
	if f.err != nil {
		return nil, f.err
	}
	return f.draft, nil
}

type fakePublisher struct {
	ref      *PostRef
	err      error
	called   bool
	gotDraft *Draft
}

func (f *fakePublisher) Publish(_ context.Context, draft *Draft) (*PostRef, error) {
	f.called = true
	f.gotDraft = draft
	if f.err != nil {
		return nil, f.err
	}
	return f.ref, nil
}
