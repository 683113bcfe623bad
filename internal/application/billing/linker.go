package billing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Linking strategies, reported on LinkResult
const (
	StrategyProtocolNumber = "protocol_number"
	StrategyInvoiceNumber  = "invoice_number"
	StrategySequence       = "sequence"
	StrategyClientName     = "client_name"
)

const (
	defaultCandidateLimit = 10
	defaultNameFragment   = 20
)

var (
	estabPattern      = regexp.MustCompile(`<estab>\s*(\d+)\s*</estab>`)
	ptoEmiPattern     = regexp.MustCompile(`<ptoEmi>\s*(\d+)\s*</ptoEmi>`)
	secuencialPattern = regexp.MustCompile(`<secuencial>\s*(\d+)\s*</secuencial>`)
)

// LinkRequest carries what is known about an invoice when looking for its document
type LinkRequest struct {
	ProtocolNumber string
	InvoiceNumber  string
	ClientName     string
}

// LinkResult is a successful association
type LinkResult struct {
	DocumentID uuid.UUID
	Confidence billing.LinkConfidence
	Strategy   string
	// DiscoveredNumber is set when the number was read from archival text
	DiscoveredNumber string
}

// Linker associates invoices with case documents. Strategies are tried in
// order and the first one that yields exactly one document wins; more than
// one candidate at the same tier is ErrLinkingAmbiguity.
type Linker struct {
	canon          *billing.Canonicalizer
	logger         *zap.Logger
	candidateLimit int
	nameFragment   int
}

// NewLinker creates a Linker
func NewLinker(canon *billing.Canonicalizer, logger *zap.Logger) *Linker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Linker{
		canon:          canon,
		logger:         logger.Named("linker"),
		candidateLimit: defaultCandidateLimit,
		nameFragment:   defaultNameFragment,
	}
}

// Find returns nil without error when no strategy matched
func (l *Linker) Find(ctx context.Context, docs billing.DocumentStore, req LinkRequest) (*LinkResult, error) {
	if req.ProtocolNumber != "" {
		doc, err := docs.FindByProtocolNumber(ctx, strings.TrimSpace(req.ProtocolNumber))
		switch {
		case err == nil:
			return &LinkResult{DocumentID: doc.ID, Confidence: billing.LinkConfidenceExactReference, Strategy: StrategyProtocolNumber}, nil
		case !errors.Is(err, shared.ErrNotFound):
			return nil, fmt.Errorf("find document by protocol number: %w", err)
		}
	}

	if req.InvoiceNumber == "" {
		return nil, nil
	}

	if res, err := l.byInvoiceNumber(ctx, docs, req); res != nil || err != nil {
		return res, err
	}
	if res, err := l.bySequence(ctx, docs, req); res != nil || err != nil {
		return res, err
	}
	return l.byClientName(ctx, docs, req)
}

func (l *Linker) byInvoiceNumber(ctx context.Context, docs billing.DocumentStore, req LinkRequest) (*LinkResult, error) {
	matches := make(map[uuid.UUID]struct{})
	for _, v := range l.canon.VariantsOf(req.InvoiceNumber) {
		found, err := docs.FindByInvoiceNumberField(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("find document by invoice number: %w", err)
		}
		for _, d := range found {
			matches[d.ID] = struct{}{}
		}
	}
	return l.single(matches, req, billing.LinkConfidenceExactNumber, StrategyInvoiceNumber)
}

func (l *Linker) bySequence(ctx context.Context, docs billing.DocumentStore, req LinkRequest) (*LinkResult, error) {
	seq := billing.ExtractSequence(req.InvoiceNumber)
	if len(seq) < billing.MinSequenceLength {
		return nil, nil
	}
	found, err := docs.FindByInvoiceNumberSuffix(ctx, seq, l.candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("find document by sequence: %w", err)
	}
	matches := make(map[uuid.UUID]struct{})
	for _, d := range found {
		if billing.SequenceMatches(d.InvoiceNumber, req.InvoiceNumber) {
			matches[d.ID] = struct{}{}
		}
	}
	return l.single(matches, req, billing.LinkConfidenceSequence, StrategySequence)
}

// byClientName scans recent unlinked documents of the same client and reads
// the invoice number from their archival XML when the field is empty.
func (l *Linker) byClientName(ctx context.Context, docs billing.DocumentStore, req LinkRequest) (*LinkResult, error) {
	fragment := nameFragment(req.ClientName, l.nameFragment)
	if fragment == "" {
		return nil, nil
	}
	candidates, err := docs.FindCandidatesByClientNameFragment(ctx, fragment, true, l.candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("find candidate documents: %w", err)
	}

	var (
		hits       []billing.DocumentRef
		discovered = make(map[uuid.UUID]string)
	)
	for _, c := range candidates {
		number := c.InvoiceNumber
		if number == "" {
			number = ExtractInvoiceNumberFromArchive(c.ArchivalText)
			if number == "" {
				continue
			}
			discovered[c.ID] = number
		}
		if billing.SequenceMatches(number, req.InvoiceNumber) {
			hits = append(hits, c)
		}
	}

	switch len(hits) {
	case 0:
		return nil, nil
	case 1:
	default:
		l.logAmbiguity(req, StrategyClientName, len(hits))
		return nil, billing.ErrLinkingAmbiguity
	}

	doc := hits[0]
	res := &LinkResult{DocumentID: doc.ID, Confidence: billing.LinkConfidenceHeuristic, Strategy: StrategyClientName}
	if number, ok := discovered[doc.ID]; ok {
		res.DiscoveredNumber = number
		if _, err := docs.SetInvoiceNumber(ctx, doc.ID, number); err != nil {
			return nil, fmt.Errorf("persist discovered invoice number: %w", err)
		}
	}
	l.logger.Info("Heuristic document link needs review",
		zap.String("invoice_number", req.InvoiceNumber),
		zap.String("document_id", doc.ID.String()),
		zap.String("protocol_number", doc.ProtocolNumber),
		zap.String("discovered_number", res.DiscoveredNumber),
	)
	return res, nil
}

func (l *Linker) single(matches map[uuid.UUID]struct{}, req LinkRequest, conf billing.LinkConfidence, strategy string) (*LinkResult, error) {
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		for id := range matches {
			return &LinkResult{DocumentID: id, Confidence: conf, Strategy: strategy}, nil
		}
	}
	l.logAmbiguity(req, strategy, len(matches))
	return nil, billing.ErrLinkingAmbiguity
}

func (l *Linker) logAmbiguity(req LinkRequest, strategy string, n int) {
	l.logger.Warn("Ambiguous document match, invoice left unlinked",
		zap.String("invoice_number", req.InvoiceNumber),
		zap.String("strategy", strategy),
		zap.Int("candidates", n),
	)
}

// ExtractInvoiceNumberFromArchive reads estab-ptoEmi-secuencial from an
// electronic invoice XML. Returns "" when any part is missing.
func ExtractInvoiceNumberFromArchive(text string) string {
	if text == "" {
		return ""
	}
	estab := estabPattern.FindStringSubmatch(text)
	pto := ptoEmiPattern.FindStringSubmatch(text)
	seq := secuencialPattern.FindStringSubmatch(text)
	if estab == nil || pto == nil || seq == nil {
		return ""
	}
	return estab[1] + "-" + pto[1] + "-" + seq[1]
}

func nameFragment(name string, n int) string {
	r := []rune(strings.TrimSpace(name))
	if len(r) > n {
		r = r[:n]
	}
	return strings.TrimSpace(string(r))
}
