package llm

import (
	"context"
	"fmt"
	"sort"
)

// Provider bundles what one configured backend can do.
type Provider struct {
	Name       string
	Text       TextGenerator
	Image      ImageGenerator
	TextModel  string
	ImageModel string
}

// Router sends each pipeline step to the provider configured for it, so
// steps can be moved between providers without touching pipeline logic.
type Router struct {
	providers map[string]Provider
	routes    map[Step]string
}

// NewRouter builds a router from step -> provider-name routes. Every step must be
// routed to a registered provider that supports it.
func NewRouter(routes map[string]string, providers ...Provider) (*Router, error) {
	r := &Router{
		providers: make(map[string]Provider, len(providers)),
		routes:    make(map[Step]string, len(routes)),
	}
	for _, p := range providers {
		r.providers[p.Name] = p
	}

	for _, step := range Steps {
		name, ok := routes[string(step)]
		if !ok {
			return nil, fmt.Errorf("no provider routed for step %q", step)
		}
		p, ok := r.providers[name]
		if !ok {
			return nil, fmt.Errorf("step %q routed to unknown provider %q", step, name)
		}
		if step == StepImage && p.Image == nil {
			return nil, fmt.Errorf("provider %q cannot generate images", name)
		}
		if step != StepImage && p.Text == nil {
			return nil, fmt.Errorf("provider %q cannot generate text for step %q", name, step)
		}
		r.routes[step] = name
	}
	return r, nil
}

// GenerateText calls the text provider routed for step.
func (r *Router) GenerateText(ctx context.Context, step Step, system, user string, params Params) (string, error) {
	p, err := r.provider(step)
	if err != nil {
		return "", err
	}
	return p.Text.GenerateText(ctx, system, user, params)
}

// GenerateImage calls the provider routed for the image step.
func (r *Router) GenerateImage(ctx context.Context, prompt, size string) (Image, error) {
	p, err := r.provider(StepImage)
	if err != nil {
		return Image{}, err
	}
	return p.Image.GenerateImage(ctx, prompt, size)
}

// Model reports the model that serves step.
func (r *Router) Model(step Step) string {
	p, err := r.provider(step)
	if err != nil {
		return ""
	}
	if step == StepImage {
		return p.ImageModel
	}
	return p.TextModel
}

// Plan returns step -> model for every routed step.
func (r *Router) Plan() map[string]string {
	plan := make(map[string]string, len(r.routes))
	for step := range r.routes {
		plan[string(step)] = r.Model(step)
	}
	return plan
}

// Providers lists the registered provider names.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Router) provider(step Step) (Provider, error) {
	name, ok := r.routes[step]
	if !ok {
		return Provider{}, fmt.Errorf("no provider routed for step %q", step)
	}
	return r.providers[name], nil
}
