package feed

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

var snapshotFieldPrefix = regexp.MustCompile(`^cxc_\d{8}_`)

// snapshotFieldNames maps prefixed Koinor columns to flat names
var snapshotFieldNames = map[string]string{
	"clientes_codcli":           "codcli",
	"clientes_nomcli":           "nomcli",
	"clientes_dircli":           "dircli",
	"clientes_telcli":           "telcli",
	"clientes_codcta":           "codcta",
	"clientes_faxcli":           "faxcli",
	"tmpfacturas_numtra":        "numtra",
	"tmpfacturas_valcob":        "valcob",
	"tmpfacturas_fecemi":        "fecemi",
	"tmpfacturas_fecven":        "fecven",
	"tmpfacturas_tipdoc":        "tipdoc",
	"tmpfacturas_abomes":        "abomes",
	"tmpfacturas_codven":        "codven",
	"cxc_numtra":                "numtra",
	"cxc_valcob":                "valcob",
	"cxc_fecemi":                "fecemi",
	"cxc_saldo":                 "saldo",
	"csaldo":                    "saldo",
	"encabezadofacturas_codsol": "codsol",
	"encabezadofacturas_nomsol": "nomsol",
	"encabezadofacturas_codgru": "codgru",
	"encabezadofacturas_nomgru": "nomgru",
}

// normalizeSnapshotField strips the date-suffixed root prefix and maps the
// remaining column name to its flat form.
func normalizeSnapshotField(name string) string {
	n := snapshotFieldPrefix.ReplaceAllString(strings.ToLower(name), "")
	if mapped, ok := snapshotFieldNames[n]; ok {
		return mapped
	}
	return n
}

type snapshotVisitor struct {
	row     fieldScope
	group   fieldScope
	rows    int
	groups  int
	onGroup func(n int, row, group fields)
}

func (v *snapshotVisitor) open(name string) {
	switch name {
	case v.row.tag:
		v.row.begin()
	case v.group.tag:
		v.group.begin()
	}
}

func (v *snapshotVisitor) close(name, text string) {
	switch name {
	case v.group.tag:
		if v.group.active {
			v.groups++
			row := v.row.fields
			v.onGroup(v.groups, row, v.group.end())
		}
		return
	case v.row.tag:
		if v.row.active {
			v.rows++
			v.row.end()
		}
		return
	}
	field := normalizeSnapshotField(name)
	if v.group.active {
		v.group.set(field, text)
	} else {
		v.row.set(field, text)
	}
}

// ParseSnapshot reads the periodic cartera export rooted at <cxc_YYYYMMDD>.
// Client tax id lives on the row, invoice fields on the nested group.
func (p *Parser) ParseSnapshot(decoded *Decoded, fileName string) (*SnapshotBatch, error) {
	start := time.Now()
	m := snapshotRootPattern.FindStringSubmatch(decoded.Text)
	if m == nil {
		return nil, newStructuralError(fileName, "snapshot root tag cxc_YYYYMMDD not found", ErrUnknownKind)
	}
	root := strings.ToLower(m[1])

	batch := &SnapshotBatch{RootTag: root, Report: newReport(fileName, decoded)}
	if d, err := time.ParseInLocation("20060102", strings.TrimPrefix(root, "cxc_"), Location); err == nil {
		batch.SnapshotDate = &d
	}

	ec := NewErrorCollection(SnapshotErrorCap)
	v := &snapshotVisitor{
		row:   fieldScope{tag: root + "_row"},
		group: fieldScope{tag: root + "_group1"},
	}
	v.onGroup = func(n int, row, group fields) {
		inv, ge := readSnapshotInvoice(n, row, group)
		if ge != nil {
			ec.Add(*ge)
			p.logGroupError(fileName, *ge)
			if number := group.get("numtra"); number != "" {
				batch.FailedNumbers = append(batch.FailedNumbers, number)
			}
			return
		}
		batch.Invoices = append(batch.Invoices, inv)
	}

	scanErr := scan(decoded.Text, v)
	if err := p.finishScan(fileName, scanErr, v.groups, ec); err != nil {
		return nil, err
	}

	batch.Report.RowsSeen = v.rows
	if v.rows > 0 && len(batch.Invoices) == 0 {
		ge := GroupError{
			Code:    ErrCodeNoInvoicesFound,
			Message: fmt.Sprintf("%d rows but no invoices; expected tags %s_row / %s_group1", v.rows, root, root),
		}
		ec.Add(ge)
		p.logger.Warn("Snapshot rows contained no invoices",
			zap.String("file", fileName), zap.Int("rows", v.rows), zap.String("root", root))
	}

	batch.Report.RecordsExtracted = len(batch.Invoices)
	batch.Report.setErrors(ec)
	batch.Report.Duration = time.Since(start)
	return batch, nil
}

func readSnapshotInvoice(n int, row, group fields) (SnapshotInvoice, *GroupError) {
	merged := make(fields, len(row)+len(group))
	for k, v := range row {
		merged[k] = v
	}
	for k, v := range group {
		merged[k] = v
	}

	number := group.get("numtra")
	if number == "" {
		return SnapshotInvoice{}, requiredError(n, "numtra", merged)
	}

	total, err := parseAmount(group.get("valcob"))
	if err != nil {
		return SnapshotInvoice{}, amountError(n, "valcob", merged)
	}
	balance := total
	if s := group.get("saldo"); s != "" {
		if balance, err = parseAmount(s); err != nil {
			return SnapshotInvoice{}, amountError(n, "saldo", merged)
		}
	}

	issued, ge := optionalDate(n, "fecemi", merged)
	if ge != nil {
		return SnapshotInvoice{}, ge
	}
	due, ge := optionalDate(n, "fecven", merged)
	if ge != nil {
		return SnapshotInvoice{}, ge
	}

	docType := group.get("tipdoc")
	if docType == "" {
		docType = "FC"
	}

	return SnapshotInvoice{
		InvoiceNumberRaw: number,
		ClientTaxID:      firstOf(row.get("codcli"), group.get("codcli")),
		ClientName:       firstOf(group.get("nomcli"), row.get("nomcli")),
		DocType:          docType,
		TotalAmount:      total.Abs(),
		Balance:          balance.Abs(),
		IssueDate:        issued,
		DueDate:          due,
	}, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
