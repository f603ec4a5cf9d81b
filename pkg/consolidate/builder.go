package consolidate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/coolbeans/lagen/pkg/metrics"
	"github.com/coolbeans/lagen/pkg/rdf"
	"github.com/coolbeans/lagen/pkg/register"
	"github.com/coolbeans/lagen/pkg/sfs"
	"github.com/coolbeans/lagen/pkg/sfst"
	"github.com/coolbeans/lagen/pkg/storage"
)

// GeneratorName is recorded as the prov:wasGeneratedBy activity of every
// consolidated document.
const GeneratorName = "lagen.consolidate"

// DefaultConcurrency bounds BuildAll.
const DefaultConcurrency = 4

const tracerName = "github.com/coolbeans/lagen/pkg/consolidate"

// Extractor turns raw act text into a structural body.
type Extractor interface {
	Extract(raw []byte) (*sfst.Body, error)
}

// Texts is the storage the builder reads from and writes to.
type Texts interface {
	ReadText(identifier sfs.Identifier, version *sfs.VersionTag) ([]byte, error)
	ReadRegister(identifier sfs.Identifier) ([]byte, error)
	WriteOutput(identifier sfs.Identifier, kind storage.OutputKind, data []byte) error
}

// Builder assembles consolidated documents from stored act text and change
// register pages.
type Builder struct {
	texts       Texts
	entries     storage.EntryStore
	extractor   Extractor
	baseURI     string
	keepExpired bool
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	now         func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(builder *Builder) {
		if logger != nil {
			builder.logger = logger
		}
	}
}

// WithBaseURI sets the prefix of act and consolidation URIs.
func WithBaseURI(baseURI string) Option {
	return func(builder *Builder) {
		if baseURI != "" {
			builder.baseURI = baseURI
		}
	}
}

// KeepExpired builds acts whose repeal date has passed instead of refusing
// them with sfs.ErrExpired.
func KeepExpired(keep bool) Option {
	return func(builder *Builder) {
		builder.keepExpired = keep
	}
}

// WithConcurrency bounds the number of builds BuildAll runs at once.
func WithConcurrency(concurrency int) Option {
	return func(builder *Builder) {
		if concurrency > 0 {
			builder.concurrency = concurrency
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(builder *Builder) {
		if now != nil {
			builder.now = now
		}
	}
}

// WithMetrics records build outcomes and durations.
func WithMetrics(collectors *metrics.Metrics) Option {
	return func(builder *Builder) {
		builder.metrics = collectors
	}
}

// WithTracer replaces the tracer taken from the global otel provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(builder *Builder) {
		if tracer != nil {
			builder.tracer = tracer
		}
	}
}

// WithExtractor replaces the SFST extractor.
func WithExtractor(extractor Extractor) Option {
	return func(builder *Builder) {
		if extractor != nil {
			builder.extractor = extractor
		}
	}
}

// NewBuilder creates a Builder. entries may be nil; the fetch-date fallback
// for the issued date then uses the build time.
func NewBuilder(texts Texts, entries storage.EntryStore, options ...Option) *Builder {
	builder := &Builder{
		texts:       texts,
		entries:     entries,
		extractor:   sfst.NewExtractor(),
		baseURI:     DefaultBaseURI,
		concurrency: DefaultConcurrency,
		logger:      slog.New(slog.DiscardHandler),
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
	}
	for _, option := range options {
		option(builder)
	}
	return builder
}

// Build consolidates the base act identifier.
//
// A missing base text is an error, as is an act repealed before today unless
// the builder keeps expired acts. Everything else degrades: unreadable
// register rows are dropped, a missing register page yields an empty chain and
// a text that cannot be extracted yields a placeholder body.
func (builder *Builder) Build(ctx context.Context, identifier sfs.Identifier) (*Document, error) {
	start := time.Now()
	ctx, span := builder.tracer.Start(ctx, "consolidate.Build",
		trace.WithAttributes(attribute.String("sfs.identifier", identifier.String())))
	defer span.End()

	document, err := builder.build(ctx, identifier)
	builder.metrics.ObserveBuild(buildOutcome(document, err), start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("sfs.updated_through", document.UpdatedThrough.String()),
		attribute.Int("sfs.register_rows", len(document.Register.Rows)),
	)
	return document, nil
}

func (builder *Builder) build(ctx context.Context, identifier sfs.Identifier) (*Document, error) {
	if !identifier.IsCanonical() {
		return nil, sfs.NonCanonical(identifier)
	}

	raw, err := builder.texts.ReadText(identifier, nil)
	if err != nil {
		return nil, err
	}

	markers := sfs.ReadMarkers(raw)
	now := builder.now()
	if !builder.keepExpired && markers.Expired(now) {
		return nil, fmt.Errorf("%s repealed on %s: %w", identifier, markers.ExpiresOn.Format(sfs.DateLayout), sfs.ErrExpired)
	}

	chain, err := builder.readChain(identifier)
	if err != nil {
		return nil, err
	}

	updatedThrough := markers.UpdatedThroughOr(identifier)
	document := &Document{
		URI:            ConsolidatedURI(builder.baseURI, identifier, updatedThrough),
		Basefile:       identifier,
		Identifier:     "SFS " + identifier.String(),
		Title:          markers.Title,
		Publisher:      register.Publisher,
		UpdatedThrough: updatedThrough,
	}
	baseRow := findChainEntry(chain, identifier)
	if document.Title == "" && baseRow != nil {
		document.Title = baseRow.Title
	}

	body, err := builder.extractor.Extract(raw)
	if err != nil {
		builder.logger.Warn("act text could not be extracted, using placeholder",
			"identifier", identifier.String(), "error", err)
		document.TextUnavailable = true
		document.Body = []sfst.Block{{Kind: sfst.KindParagraph, Text: PlaceholderText}}
		if baseRow != nil && baseRow.Title != "" {
			document.Title = baseRow.Title
		}
	} else {
		document.Body = body.Blocks
	}

	var provisions []sfst.Provision
	document.Body, provisions = detachTransitional(document.Body)
	document.Register = builder.registerSection(identifier, chain, provisions)

	entry, err := builder.loadEntry(ctx, identifier)
	if err != nil {
		return nil, err
	}
	issued, method, fromSource := resolveIssued(chain, markers.EnactedOn, entry, now)
	if !fromSource {
		builder.logger.Warn("no issued date or fetch record, dating by build time",
			"identifier", identifier.String())
	}
	document.Issued = issued
	document.IssuedDate = issued.Format(sfs.DateLayout)
	document.IssuedMethod = method

	document.Graph = builder.provenance(document, chain, entry)
	return document, nil
}

// readChain parses the stored change register page. A missing page is an
// empty chain.
func (builder *Builder) readChain(identifier sfs.Identifier) ([]register.ChainEntry, error) {
	page, err := builder.texts.ReadRegister(identifier)
	if errors.Is(err, sfs.ErrNotFound) {
		builder.logger.Warn("no change register stored, consolidating without amendments",
			"identifier", identifier.String())
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	chain, rowErrors := register.ParseChangeRegister(page)
	for _, rowErr := range rowErrors {
		builder.logger.Warn("dropping malformed register row",
			"identifier", identifier.String(), "error", rowErr)
	}
	return chain, nil
}

func (builder *Builder) loadEntry(ctx context.Context, identifier sfs.Identifier) (*storage.DocumentEntry, error) {
	if builder.entries == nil {
		return nil, nil
	}
	entry, err := builder.entries.LoadEntry(ctx, identifier)
	if errors.Is(err, storage.ErrNoEntry) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document entry of %s: %w", identifier, err)
	}
	return entry, nil
}

// registerSection lays out the chain rows and attaches each transitional
// provision to the row of the act that introduced it.
func (builder *Builder) registerSection(identifier sfs.Identifier, chain []register.ChainEntry, provisions []sfst.Provision) Register {
	section := Register{Heading: HeadingChanges, Rows: make([]RegisterRow, 0, len(chain))}
	rowIndex := make(map[sfs.Identifier]int, len(chain))

	for _, chainEntry := range chain {
		row := RegisterRow{
			ID:         rowID(chainEntry),
			URI:        ActURI(builder.baseURI, chainEntry.Identifier),
			Identifier: chainEntry.Identifier,
			Title:      chainEntry.Title,
			Issued:     formatDate(chainEntry.Issued),
			InForce:    formatDate(chainEntry.InForce),
			Scope:      chainEntry.Scope,
		}
		if _, seen := rowIndex[chainEntry.Identifier]; !seen {
			rowIndex[chainEntry.Identifier] = len(section.Rows)
		}
		section.Rows = append(section.Rows, row)
	}

	for _, provision := range provisions {
		index, exists := rowIndex[provision.Identifier]
		if !exists {
			builder.logger.Warn("transitional provision has no register row",
				"identifier", identifier.String(), "provision", provision.Identifier.String())
			continue
		}
		section.Rows[index].Transitional = provision.Text
		section.Heading = HeadingChangesTransitional
	}
	return section
}

// provenance builds the graph describing where the consolidated document came
// from.
func (builder *Builder) provenance(document *Document, chain []register.ChainEntry, entry *storage.DocumentEntry) *rdf.Graph {
	graph := rdf.NewGraph()
	subject := document.URI

	graph.Add(subject, rdf.RDFType, rdf.IRI(rdf.RPUBLKonsolideradGrundforfattning))
	graph.Add(subject, rdf.RPUBLKonsoliderar, rdf.IRI(ActURI(builder.baseURI, document.Basefile)))
	for _, chainEntry := range chain {
		graph.Add(subject, rdf.RPUBLKonsolideringsunderlag, rdf.IRI(ActURI(builder.baseURI, chainEntry.Identifier)))
	}
	graph.Add(subject, rdf.OWLSameAs, rdf.IRI(RinfoURI(document.Basefile, document.Issued)))
	graph.Add(subject, rdf.DCTermsIssued, rdf.Date(document.Issued))
	graph.Add(subject, rdf.DCTermsIdentifier, rdf.Literal(document.Identifier))
	if document.Title != "" {
		graph.Add(subject, rdf.DCTermsTitle, rdf.Literal(document.Title))
	}
	graph.Add(subject, rdf.DCTermsPublisher, rdf.Literal(document.Publisher))
	graph.Add(subject, rdf.PROVWasGeneratedBy, rdf.Literal(GeneratorName))
	graph.Add(subject, rdf.RINFOEXIssuedMethod, rdf.Literal(string(document.IssuedMethod)))
	if document.TextUnavailable {
		graph.Add(subject, rdf.RINFOEXTextUnavailable, rdf.Literal("true"))
	}
	if entry != nil {
		if !entry.OrigUpdated.IsZero() {
			graph.Add(subject, rdf.RINFOEXSenastHamtad, rdf.DateTime(entry.OrigUpdated))
		}
		if !entry.OrigChecked.IsZero() {
			graph.Add(subject, rdf.RINFOEXSenastKontrollerad, rdf.DateTime(entry.OrigChecked))
		}
	}
	return graph
}

// BuildResult is the outcome of one build in BuildAll. Exactly one of
// Document and Err is set.
type BuildResult struct {
	Document *Document
	Err      error
}

// BuildAll builds every identifier, at most the configured number at a time.
// A failed build is reported in its result and never stops the others; only
// cancelling ctx does.
func (builder *Builder) BuildAll(ctx context.Context, identifiers []sfs.Identifier) (map[sfs.Identifier]BuildResult, error) {
	results := make(map[sfs.Identifier]BuildResult, len(identifiers))
	var resultsMutex sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(builder.concurrency)

	for _, identifier := range identifiers {
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			document, err := builder.Build(groupCtx, identifier)
			if err != nil {
				builder.logger.Warn("build failed", "identifier", identifier.String(), "error", err)
			}

			resultsMutex.Lock()
			results[identifier] = BuildResult{Document: document, Err: err}
			resultsMutex.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return results, fmt.Errorf("build interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("build interrupted: %w", err)
	}
	return results, nil
}

// Write stores the document as canonical JSON and its provenance graph as
// Turtle, replacing any earlier output.
func (builder *Builder) Write(document *Document) error {
	encoded, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", document.Basefile, err)
	}
	canonical, err := jcs.Transform(encoded)
	if err != nil {
		return fmt.Errorf("failed to canonicalize %s: %w", document.Basefile, err)
	}
	if err := builder.texts.WriteOutput(document.Basefile, storage.OutputDocument, canonical); err != nil {
		return err
	}

	graph := document.Graph
	if graph == nil {
		graph = rdf.NewGraph()
	}
	turtle := rdf.NewTurtleSerializer().Serialize(graph)
	return builder.texts.WriteOutput(document.Basefile, storage.OutputGraph, []byte(turtle))
}

func buildOutcome(document *Document, err error) string {
	switch {
	case err == nil && document.TextUnavailable:
		return "placeholder"
	case err == nil:
		return "ok"
	case errors.Is(err, sfs.ErrNotFound):
		return "not_found"
	case errors.Is(err, sfs.ErrExpired):
		return "expired"
	case errors.Is(err, sfs.ErrNonCanonical):
		return "non_canonical"
	default:
		return "error"
	}
}

// detachTransitional removes the transitional-provisions block from a body and
// returns its provisions.
func detachTransitional(blocks []sfst.Block) ([]sfst.Block, []sfst.Provision) {
	var provisions []sfst.Provision
	kept := blocks[:0:0]
	for _, block := range blocks {
		if block.Kind == sfst.KindTransitional {
			provisions = append(provisions, block.Provisions...)
			continue
		}
		kept = append(kept, block)
	}
	return kept, provisions
}

func findChainEntry(chain []register.ChainEntry, identifier sfs.Identifier) *register.ChainEntry {
	for index := range chain {
		if chain[index].Identifier == identifier {
			return &chain[index]
		}
	}
	return nil
}

func formatDate(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.Format(sfs.DateLayout)
}
