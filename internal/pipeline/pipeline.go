// Package pipeline defines the generate-then-publish boundary the
// schedule engine drives once per topic per firing.
package pipeline

import (
	"context"
)

// Draft is a generated, not yet published post.
type Draft struct {
	Title string
	Body  string
}

// PostRef identifies a published post in the CMS.
type PostRef struct {
	ID  string
	URL string
}

// Generator produces a draft post for a topic.
type Generator interface {
	Generate(ctx context.Context, topic string) (*Draft, error)
}

// Publisher pushes a draft to the content-management system.
type Publisher interface {
	Publish(ctx context.Context, draft *Draft) (*PostRef, error)
}

// Pipeline composes a Generator and a Publisher. The scheduler only
// depends on this type; the concrete HTTP clients live behind it.
type Pipeline struct {
	generator Generator
	publisher Publisher
}

func New(g Generator, p Publisher) *Pipeline {
	return &Pipeline{generator: g, publisher: p}
}

// Run generates content for topic and publishes it. Both steps must
// succeed; the error reports which step failed.
func (p *Pipeline) Run(ctx context.Context, topic string) (*PostRef, error) {
	draft, err := p.generator.Generate(ctx, topic)
	if err != nil {
		return nil, err
	}

	ref, err := p.publisher.Publish(ctx, draft)
	if err != nil {
		return nil, err
	}

	return ref, nil
}
