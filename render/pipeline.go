// Package render implements the render pipeline orchestrator (spec
// §4.9): the top-level state machine that takes a textual template
// reference and a JSON data value, resolves them to a manifest and a
// canonical data digest, invokes the compile engine (through the
// virtual filesystem adapter and in-process caches), persists the
// resulting PDF, and appends an audit record — all within a bounded
// concurrency budget.
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/papermake/papermake/canon"
	"github.com/papermake/papermake/cache"
	"github.com/papermake/papermake/digest"
	"github.com/papermake/papermake/engine"
	"github.com/papermake/papermake/fontset"
	"github.com/papermake/papermake/internal/dcontext"
	"github.com/papermake/papermake/internal/errcode"
	"github.com/papermake/papermake/manifest"
	"github.com/papermake/papermake/metrics"
	"github.com/papermake/papermake/recordsink"
	"github.com/papermake/papermake/reference"
	"github.com/papermake/papermake/renderid"
	"github.com/papermake/papermake/store"
	"github.com/papermake/papermake/vfs"
)

// BlobStore is the subset of store.Store the render pipeline reads
// from and writes PDFs to.
type BlobStore interface {
	GetManifest(ctx context.Context, d digest.Digest) ([]byte, error)
	GetBlob(ctx context.Context, d digest.Digest) ([]byte, error)
	BlobExists(ctx context.Context, d digest.Digest) (bool, error)
	PutBlobIfAbsent(ctx context.Context, content []byte) (digest.Digest, error)
	GetRef(ctx context.Context, refKey string) (d digest.Digest, found bool, err error)
}

// Result is a successful render's outcome.
type Result struct {
	RenderID   renderid.ID
	PDFDigest  digest.Digest
	DurationMS int64
}

// warmEntry is what Pipeline stores in the warm-state cache, keyed by
// manifest digest: whatever the engine's Warmer returned (nil if the
// engine doesn't implement Warmer), plus a one-entry memo of the most
// recent render's (data_digest, pdf_digest) pair so a repeat render
// with unchanged data can skip recompilation (spec §4.9 step 3).
type warmEntry struct {
	engineState  any
	dataDigest   digest.Digest
	pdfDigest    digest.Digest
}

// Pipeline is the render orchestrator.
type Pipeline struct {
	store     BlobStore
	manifests *cache.ManifestCache
	tags      *cache.TagCache
	warm      *cache.WarmStateCache
	engine    engine.Engine
	fonts     *fontset.Set
	sink      *recordsink.Sink
	admission *Admission
	timeout   time.Duration
}

// Config bundles Pipeline's dependencies.
type Config struct {
	Store     BlobStore
	Manifests *cache.ManifestCache
	Tags      *cache.TagCache
	Warm      *cache.WarmStateCache
	Engine    engine.Engine
	Fonts     *fontset.Set
	Sink      *recordsink.Sink
	Admission *Admission
	// Timeout bounds a single render end-to-end, beyond whatever
	// deadline ctx already carries. Zero disables the pipeline-level
	// watchdog.
	Timeout time.Duration
}

// New constructs a Pipeline. Fonts defaults to fontset.Default() if nil.
func New(cfg Config) *Pipeline {
	fonts := cfg.Fonts
	if fonts == nil {
		fonts = fontset.Default()
	}
	return &Pipeline{
		store:     cfg.Store,
		manifests: cfg.Manifests,
		tags:      cfg.Tags,
		warm:      cfg.Warm,
		engine:    cfg.Engine,
		fonts:     fonts,
		sink:      cfg.Sink,
		admission: cfg.Admission,
		timeout:   cfg.Timeout,
	}
}

// Render runs one render end to end (spec §4.9). refText is a textual
// template reference (spec §3/§4.4); data is the caller-supplied JSON
// value, canonicalized internally before hashing or compiling.
func (p *Pipeline) Render(ctx context.Context, refText string, data json.RawMessage) (Result, error) {
	start := time.Now()
	id := renderid.New()
	ctx = context.WithValue(ctx, renderIDKey{}, id.String())

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if p.admission != nil {
		release, err := p.admission.Acquire(ctx)
		if err != nil {
			return Result{}, p.fail(ctx, id, start, refText, "", "", classifyContextErr(err), err)
		}
		defer release()
	}

	res, err := p.render(ctx, id, start, refText, data)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (p *Pipeline) render(ctx context.Context, id renderid.ID, start time.Time, refText string, data json.RawMessage) (Result, error) {
	ref, err := reference.Parse(refText)
	if err != nil {
		return Result{}, p.fail(ctx, id, start, refText, "", "", "InvalidReference", errcode.ErrInvalidReference.WithCause(err))
	}

	manifestDigest, err := p.resolve(ctx, ref)
	if err != nil {
		return Result{}, p.fail(ctx, id, start, refText, "", "", errcode.Kind(err), err)
	}

	canonicalData, err := canon.CanonicalizeRaw(data)
	if err != nil {
		return Result{}, p.fail(ctx, id, start, refText, manifestDigest, "", "InvalidData", errcode.ErrInvalidData.WithCause(err))
	}
	dataDigest := digest.FromBytes(canonicalData)

	man, err := p.loadManifest(ctx, manifestDigest)
	if err != nil {
		return Result{}, p.fail(ctx, id, start, refText, manifestDigest, dataDigest, errcode.Kind(err), err)
	}

	pdfDigest, err := p.compileOrReuse(ctx, man, canonicalData, dataDigest)
	if err != nil {
		return Result{}, p.fail(ctx, id, start, refText, manifestDigest, dataDigest, errcode.Kind(err), err)
	}

	result := Result{RenderID: id, PDFDigest: pdfDigest, DurationMS: time.Since(start).Milliseconds()}
	metrics.RenderOutcome("Success", start)
	p.record(ctx, recordsink.Record{
		RenderID:        id.String(),
		Timestamp:       start,
		TemplateRefText: refText,
		ManifestDigest:  manifestDigest,
		DataDigest:      dataDigest,
		PDFDigest:       pdfDigest,
		Success:         true,
		DurationMS:      result.DurationMS,
	})
	return result, nil
}

// resolve turns ref into a manifest digest, using the tag cache and
// immutable/mutable TTL split of spec §4.5/§4.11.
func (p *Pipeline) resolve(ctx context.Context, ref reference.Reference) (digest.Digest, error) {
	if digested, ok := ref.(reference.Digested); ok {
		if _, tagged := ref.(reference.Tagged); !tagged {
			return digested.Digest(), nil
		}
	}

	named, ok := ref.(reference.Named)
	if !ok {
		return "", errcode.ErrInvalidReference.WithDetail("reference has no name and no digest")
	}
	tagged, ok := ref.(reference.Tagged)
	if !ok {
		return "", errcode.ErrInvalidReference.WithDetail("reference has a name but no tag or digest to resolve")
	}

	ns, name := reference.SplitNamespace(named)
	refKey := store.RefPath(ns, name, tagged.Tag())
	immutable := reference.IsImmutableTag(tagged.Tag())

	if d, ok := p.tags.Get(refKey, immutable); ok {
		if err := p.verifyAgainstDigest(ref, d); err != nil {
			return "", err
		}
		return d, nil
	}

	resolved, found, err := p.store.GetRef(ctx, refKey)
	if err != nil {
		return "", err
	}
	if !found {
		return "", errcode.ErrTemplateNotFound.WithDetail(refKey)
	}
	p.tags.Put(refKey, resolved, immutable)

	if err := p.verifyAgainstDigest(ref, resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

// verifyAgainstDigest checks a reference carrying both a tag and a
// digest (spec §3: "both (tag + digest used for verification)")
// against the tag's actually-resolved digest.
func (p *Pipeline) verifyAgainstDigest(ref reference.Reference, resolved digest.Digest) error {
	digested, ok := ref.(reference.Digested)
	if !ok {
		return nil
	}
	if digested.Digest() != resolved {
		return errcode.ErrHashMismatch.WithDetail(fmt.Sprintf("reference specified %s, tag resolves to %s", digested.Digest(), resolved))
	}
	return nil
}

func (p *Pipeline) loadManifest(ctx context.Context, d digest.Digest) (*manifest.DeserializedManifest, error) {
	if m, ok := p.manifests.Get(d); ok {
		return m, nil
	}

	raw, err := p.store.GetManifest(ctx, d)
	if err != nil {
		return nil, err
	}
	m, err := manifest.FromCanonicalBytes(raw)
	if err != nil {
		return nil, errcode.ErrInvalidManifest.WithCause(err)
	}
	p.manifests.Put(m)
	return m, nil
}

// compileOrReuse produces the PDF digest for man against canonicalData,
// reusing a prior compile when the warm-state cache holds an entry for
// the same manifest digest and an unchanged data digest whose PDF blob
// is still present (spec §4.9 step 3, §4.11's warm-state row).
func (p *Pipeline) compileOrReuse(ctx context.Context, man *manifest.DeserializedManifest, canonicalData []byte, dataDigest digest.Digest) (digest.Digest, error) {
	manifestDigest := man.Digest()

	if cached, ok := p.warm.Peek(manifestDigest); ok {
		if we, ok := cached.(warmEntry); ok && we.dataDigest == dataDigest && we.pdfDigest != "" {
			if exists, err := p.store.BlobExists(ctx, we.pdfDigest); err == nil && exists {
				dcontext.GetLogger(ctx, renderIDKey{}).Debugf("render: reusing cached pdf %s for manifest %s", we.pdfDigest, manifestDigest)
				return we.pdfDigest, nil
			}
		}
	}

	fs := vfs.New(ctx, p.store, man, p.fonts)

	var engineState any
	if warmer, ok := p.engine.(engine.Warmer); ok {
		state, err := p.warm.GetOrWarm(ctx, manifestDigest, func(ctx context.Context) (any, error) {
			return warmer.Warm(ctx, fs)
		})
		if err != nil {
			return "", err
		}
		if we, ok := state.(warmEntry); ok {
			engineState = we.engineState
		} else {
			engineState = state
		}
	}

	result, err := p.engine.Compile(ctx, engine.Request{
		Files:     fs,
		Data:      canonicalData,
		Fonts:     p.fonts.Files(),
		WarmState: engineState,
	})
	if err != nil {
		return "", err
	}
	if len(result.PDF) == 0 {
		return "", errcode.ErrCompileFailed.WithDetail(errcode.CompileFailure{Sub: errcode.EmptyOutput})
	}

	pdfDigest, err := p.store.PutBlobIfAbsent(ctx, result.PDF)
	if err != nil {
		return "", err
	}

	p.warm.Put(manifestDigest, warmEntry{
		engineState: engineState,
		dataDigest:  dataDigest,
		pdfDigest:   pdfDigest,
	})

	return pdfDigest, nil
}

// fail records a terminal non-success outcome and returns err unchanged,
// so callers can write "return Result{}, p.fail(...)".
func (p *Pipeline) fail(ctx context.Context, id renderid.ID, start time.Time, refText string, manifestDigest, dataDigest digest.Digest, kind string, err error) error {
	metrics.RenderOutcome(kind, start)
	dcontext.GetLogger(ctx, renderIDKey{}).Warnf("render failed: kind=%s err=%v", kind, err)
	p.record(ctx, recordsink.Record{
		RenderID:        id.String(),
		Timestamp:       start,
		TemplateRefText: refText,
		ManifestDigest:  manifestDigest,
		DataDigest:      dataDigest,
		Success:         false,
		DurationMS:      time.Since(start).Milliseconds(),
		ErrorKind:       kind,
		ErrorMessage:    err.Error(),
	})
	return err
}

// record appends r to the sink, if one is configured. Sink failures are
// logged, never propagated: an audit-trail outage must not fail renders
// (spec §4.10).
func (p *Pipeline) record(ctx context.Context, r recordsink.Record) {
	if p.sink == nil {
		return
	}
	if err := p.sink.Write(r); err != nil {
		dcontext.GetLogger(ctx, renderIDKey{}).Warnf("render: record sink rejected write: %v", err)
	}
}

// renderIDKey carries the current render's ID through ctx, merged into
// log lines by dcontext.GetLogger(ctx, renderIDKey{}).
type renderIDKey struct{}

func (renderIDKey) String() string { return "render_id" }

func classifyContextErr(err error) string {
	if err == context.DeadlineExceeded {
		return "Timeout"
	}
	if err == context.Canceled {
		return "Cancelled"
	}
	return "Rejected"
}
