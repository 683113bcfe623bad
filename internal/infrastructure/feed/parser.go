package feed

import (
	"go.uber.org/zap"
)

// Parser turns raw feed bytes into a typed Batch
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a Parser. A nil logger is replaced by a no-op.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger.Named("feed")}
}

// Parse decodes raw and dispatches to the parser for declared, sniffing the
// kind from content when declared is empty. A declared kind whose tags are
// absent from the content is a StructuralError.
func (p *Parser) Parse(raw []byte, fileName string, declared Kind) (Batch, error) {
	decoded, err := Decode(raw, fileName)
	if err != nil {
		return nil, err
	}

	detected, ok := DetectKind(decoded.Text)
	kind := declared
	switch {
	case kind == "" && !ok:
		return nil, newStructuralError(fileName, "content matches no known feed", ErrUnknownKind)
	case kind == "":
		kind = detected
	case ok && detected != kind:
		return nil, newStructuralError(fileName, "declared type "+string(declared)+" but content is "+string(detected), nil)
	}

	p.logger.Info("Parsing feed file",
		zap.String("file", fileName),
		zap.String("kind", string(kind)),
		zap.String("encoding", decoded.Encoding),
		zap.Int("chars", len(decoded.Text)),
	)

	switch kind {
	case KindLedger:
		return p.ParseLedger(decoded, fileName)
	case KindMovement:
		return p.ParseMovement(decoded, fileName)
	case KindSnapshot:
		return p.ParseSnapshot(decoded, fileName)
	}
	return nil, newStructuralError(fileName, "unsupported feed type "+string(kind), ErrUnknownKind)
}

func (p *Parser) logGroupError(fileName string, ge GroupError) {
	p.logger.Warn("Skipping malformed group",
		zap.String("file", fileName),
		zap.Int("group", ge.Group),
		zap.String("code", ge.Code),
		zap.String("field", ge.Field),
		zap.String("value", ge.Value),
		zap.Any("raw", ge.Raw),
	)
}

// finishScan converts a mid-stream syntax error into either a structural
// failure (nothing usable was read) or one more group error.
func (p *Parser) finishScan(fileName string, scanErr error, groups int, ec *ErrorCollection) error {
	if scanErr == nil {
		return nil
	}
	if groups == 0 {
		return newStructuralError(fileName, "malformed XML before the first group", scanErr)
	}
	ge := GroupError{Group: groups + 1, Code: ErrCodeMalformedXML, Message: scanErr.Error()}
	ec.Add(ge)
	p.logGroupError(fileName, ge)
	return nil
}

func newReport(fileName string, decoded *Decoded) Report {
	return Report{FileName: fileName, Encoding: decoded.Encoding}
}
