package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubText struct {
	name  string
	calls int
}

func (s *stubText) GenerateText(ctx context.Context, system, user string, params Params) (string, error) {
	s.calls++
	return s.name + ":" + user, nil
}

type stubImage struct {
	calls int
}

func (s *stubImage) GenerateImage(ctx context.Context, prompt, size string) (Image, error) {
	s.calls++
	return Image{URL: "https://img/" + size}, nil
}

func allRoutes(provider string) map[string]string {
	routes := map[string]string{}
	for _, step := range Steps {
		routes[string(step)] = provider
	}
	return routes
}

func TestRouterSendsStepsToConfiguredProvider(t *testing.T) {
	fast := &stubText{name: "fast"}
	smart := &stubText{name: "smart"}
	images := &stubImage{}

	routes := allRoutes("gemini")
	routes["themes"] = "openai"
	routes["image"] = "openai"

	r, err := NewRouter(routes,
		Provider{Name: "gemini", Text: fast, TextModel: "gemini-2.0-flash"},
		Provider{Name: "openai", Text: smart, Image: images, TextModel: "gpt-4o", ImageModel: "gpt-image-1"},
	)
	require.NoError(t, err)

	out, err := r.GenerateText(context.Background(), StepThemes, "", "topic", Params{})
	require.NoError(t, err)
	assert.Equal(t, "smart:topic", out)

	out, err = r.GenerateText(context.Background(), StepSection, "", "body", Params{})
	require.NoError(t, err)
	assert.Equal(t, "fast:body", out)

	img, err := r.GenerateImage(context.Background(), "teapot", "1024x1024")
	require.NoError(t, err)
	assert.Equal(t, "https://img/1024x1024", img.URL)

	assert.Equal(t, 1, smart.calls)
	assert.Equal(t, 1, fast.calls)
	assert.Equal(t, 1, images.calls)

	assert.Equal(t, "gpt-4o", r.Model(StepThemes))
	assert.Equal(t, "gpt-image-1", r.Model(StepImage))
	assert.Equal(t, "gemini-2.0-flash", r.Plan()["metadata"])
	assert.Equal(t, []string{"gemini", "openai"}, r.Providers())
}

func TestNewRouterValidatesRoutes(t *testing.T) {
	text := &stubText{}

	_, err := NewRouter(map[string]string{"themes": "gemini"}, Provider{Name: "gemini", Text: text})
	assert.Error(t, err, "missing steps")

	_, err = NewRouter(allRoutes("nobody"), Provider{Name: "gemini", Text: text})
	assert.Error(t, err, "unknown provider")

	_, err = NewRouter(allRoutes("gemini"), Provider{Name: "gemini", Text: text})
	assert.Error(t, err, "image step needs an image generator")
}

func TestRateLimitedHonorsDeadline(t *testing.T) {
	text := &stubText{name: "x"}
	// One token, refilled once a minute.
	limited := NewRateLimited(1, 1, text, nil)

	_, err := limited.GenerateText(context.Background(), "", "first", Params{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = limited.GenerateText(ctx, "", "second", Params{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, text.calls)
}

func TestRateLimitedDisabled(t *testing.T) {
	text := &stubText{name: "x"}
	images := &stubImage{}
	limited := NewRateLimited(0, 0, text, images)

	for i := 0; i < 20; i++ {
		_, err := limited.GenerateText(context.Background(), "", "go", Params{})
		require.NoError(t, err)
	}
	_, err := limited.GenerateImage(context.Background(), "p", "1024x1024")
	require.NoError(t, err)
	assert.Equal(t, 20, text.calls)
	assert.Equal(t, 1, images.calls)
}
