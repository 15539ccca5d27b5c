// Package router dispatches chat requests to providers by model namespace.
//
// A Router owns one default provider (Ollama), which serves bare model
// identifiers, and any number of namespaced providers keyed by their tag
// ("openai/gpt-4o" goes to the OpenAI provider as "gpt-4o"). The registry is
// fixed at construction, so a Router is safe for concurrent use.
//
// Each operation comes in two forms. Stream and Complete return typed
// *provider.Error values; StreamChat and Chat turn failures into in-band
// "[Error: ...]" text for callers that only display what they receive.
package router

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"cmdai/config"
	"cmdai/model"
	"cmdai/provider"
)

// FallbackModels is the catalog when no provider contributes anything.
var FallbackModels = []string{"llama2"}

// ErrUnavailable is wrapped when the default provider could not be created.
var ErrUnavailable = errors.New("provider unavailable")

// streamErrorPrefix separates a stream failure marker from partial output.
const streamErrorPrefix = "\n\n"

type Router struct {
	local     model.Provider
	providers map[provider.ProviderType]model.Provider
	order     []provider.ProviderType
}

// Option registers additional providers at construction.
type Option func(*Router)

// WithProvider registers p under namespace tag. Registering a tag twice keeps
// the last provider; tags that are not namespaces are ignored.
func WithProvider(tag provider.ProviderType, p model.Provider) Option {
	return func(r *Router) {
		if !tag.IsNamespace() || p == nil {
			config.DebugLog.Warn().Str("tag", string(tag)).Msg("ignoring provider registration")
			return
		}
		if _, exists := r.providers[tag]; !exists {
			r.order = append(r.order, tag)
		}
		r.providers[tag] = p
	}
}

// New creates a Router with local serving bare identifiers. local may be nil
// when the default provider could not be created; bare identifiers then fail
// with ErrUnavailable.
func New(local model.Provider, opts ...Option) *Router {
	r := &Router{
		local:     local,
		providers: make(map[provider.ProviderType]model.Provider),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FromRegistrations builds a Router from provider.InitializeProviders output.
func FromRegistrations(regs []provider.Registration) *Router {
	var local model.Provider
	var opts []Option
	for _, reg := range regs {
		if reg.Type == provider.DefaultType {
			local = reg.Provider
			continue
		}
		opts = append(opts, WithProvider(reg.Type, reg.Provider))
	}
	return New(local, opts...)
}

// resolve returns the provider and native id for id, or the typed error the
// caller should report instead.
func (r *Router) resolve(id string) (model.Provider, Route, error) {
	route := Parse(id)

	if route.Provider == provider.DefaultType {
		if r.local == nil {
			return nil, route, &provider.Error{
				Provider: provider.DefaultType.DisplayName(),
				Kind:     provider.FailureTransport,
				Err:      ErrUnavailable,
			}
		}
		return r.local, route, nil
	}

	p, ok := r.providers[route.Provider]
	if !ok {
		return nil, route, provider.NotConfigured(route.Provider)
	}
	return p, route, nil
}

// ListModels returns the merged catalog: the default provider's models bare,
// then every namespaced provider's models prefixed with its tag, in
// registration order. Providers are queried concurrently.
func (r *Router) ListModels(ctx context.Context) []string {
	type source struct {
		tag provider.ProviderType
		p   model.Provider
	}

	var sources []source
	if r.local != nil {
		sources = append(sources, source{provider.DefaultType, r.local})
	}
	for _, tag := range r.order {
		sources = append(sources, source{tag, r.providers[tag]})
	}

	results := make([][]string, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Go(func() {
			results[i] = listOne(ctx, src.tag, src.p)
		})
	}
	wg.Wait()

	var catalog []string
	for i, src := range sources {
		for _, m := range results[i] {
			if src.tag == provider.DefaultType {
				catalog = append(catalog, m)
			} else {
				catalog = append(catalog, AddNamespace(m, src.tag))
			}
		}
	}

	if len(catalog) == 0 {
		return slices.Clone(FallbackModels)
	}
	return catalog
}

// listOne queries one provider. A failure keeps whatever list the provider
// still returned; a panic counts as an empty contribution.
func listOne(ctx context.Context, tag provider.ProviderType, p model.Provider) (models []string) {
	defer func() {
		if rec := recover(); rec != nil {
			config.DebugLog.Error().Str("provider", string(tag)).Str("panic", fmt.Sprint(rec)).Msg("model listing panicked")
			models = nil
		}
	}()

	start := time.Now()
	models, err := p.ListModels(ctx)
	if err != nil {
		config.DebugLog.Debug().
			Str("provider", string(tag)).
			Err(err).
			Int("fallback", len(models)).
			Msg("model listing failed")
	} else {
		config.DebugLog.Debug().
			Str("provider", string(tag)).
			Int("models", len(models)).
			Dur("elapsed", time.Since(start)).
			Msg("listed models")
	}
	return models
}

// Stream streams a reply from the provider id resolves to. Fragments pass
// through unchanged; a failure is the final ("", *provider.Error) pair.
func (r *Router) Stream(ctx context.Context, id string, messages []model.ChatMessage) iter.Seq2[string, error] {
	p, route, err := r.resolve(id)
	if err != nil {
		return func(yield func(string, error) bool) {
			config.DebugLog.Debug().Str("model", id).Err(err).Msg("cannot route stream")
			yield("", err)
		}
	}

	config.DebugLog.Debug().
		Str("provider", string(route.Provider)).
		Str("model", route.Model).
		Int("messages", len(messages)).
		Msg("streaming chat")
	return p.StreamChat(ctx, route.Model, messages)
}

// StreamChat is the in-band form of Stream. A stream failure ends the
// sequence with "\n\n[Error: <message>]"; an unconfigured namespace yields
// only "[Error: <Provider> API key not configured]".
func (r *Router) StreamChat(ctx context.Context, id string, messages []model.ChatMessage) iter.Seq[string] {
	return func(yield func(string) bool) {
		for fragment, err := range r.Stream(ctx, id, messages) {
			if err != nil {
				yield(inBandStreamError(err))
				return
			}
			if !yield(fragment) {
				return
			}
		}
	}
}

func inBandStreamError(err error) string {
	if provider.KindOf(err) == provider.FailureNotConfigured {
		return provider.Marker(err)
	}
	return streamErrorPrefix + provider.Marker(err)
}

// Complete sends one non-streaming request.
func (r *Router) Complete(ctx context.Context, id string, messages []model.ChatMessage) (string, error) {
	p, route, err := r.resolve(id)
	if err != nil {
		return "", err
	}

	start := time.Now()
	reply, err := p.Chat(ctx, route.Model, messages)
	if err != nil {
		config.DebugLog.Debug().Str("provider", string(route.Provider)).Str("model", route.Model).Err(err).Msg("chat failed")
		return "", err
	}
	config.DebugLog.Debug().
		Str("provider", string(route.Provider)).
		Str("model", route.Model).
		Dur("elapsed", time.Since(start)).
		Msg("chat complete")
	return reply, nil
}

// Chat is the in-band form of Complete: failures become "[Error: <message>]".
func (r *Router) Chat(ctx context.Context, id string, messages []model.ChatMessage) string {
	reply, err := r.Complete(ctx, id, messages)
	if err != nil {
		return provider.Marker(err)
	}
	return reply
}
