package reconciliation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/recaudo-api/internal/application/reconciliation"
	"github.com/jhoicas/recaudo-api/internal/domain"
	"github.com/jhoicas/recaudo-api/internal/domain/entity"
	"github.com/jhoicas/recaudo-api/internal/domain/repository"
	"github.com/jhoicas/recaudo-api/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes en memoria de los repositorios
// ──────────────────────────────────────────────────────────────────────────────

func cloneEvidence(ev *entity.PaymentEvidence) *entity.PaymentEvidence {
	c := *ev
	return &c
}

func cloneInvoice(inv *entity.Invoice) *entity.Invoice {
	c := *inv
	return &c
}

// fakeEvidenceRepo reproduce la semántica del upsert por identidad de origen:
// una evidencia que ya salió de su estado inicial no se pisa por re-ingesta.
type fakeEvidenceRepo struct {
	mu   sync.Mutex
	rows []*entity.PaymentEvidence
}

func (f *fakeEvidenceRepo) seed(ev *entity.PaymentEvidence) *entity.PaymentEvidence {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	f.rows = append(f.rows, cloneEvidence(ev))
	return cloneEvidence(ev)
}

func (f *fakeEvidenceRepo) findByOrigin(messageID, attachment string) *entity.PaymentEvidence {
	for _, row := range f.rows {
		if row.SourceMessageID == messageID && row.AttachmentName == attachment {
			return row
		}
	}
	return nil
}

func (f *fakeEvidenceRepo) Upsert(ev *entity.PaymentEvidence) (*entity.PaymentEvidence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing := f.findByOrigin(ev.SourceMessageID, ev.AttachmentName)
	if existing == nil {
		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		now := time.Now()
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = now
		}
		ev.UpdatedAt = now
		f.rows = append(f.rows, cloneEvidence(ev))
		return cloneEvidence(ev), nil
	}

	if existing.Status == entity.EvidenceStatusUnmatched || existing.Status == entity.EvidenceStatusSubmitted {
		existing.Amount = ev.Amount
		existing.Confidence = ev.Confidence
	}
	if ev.InvoiceNumber != "" {
		existing.InvoiceNumber = ev.InvoiceNumber
	}
	existing.Subject = ev.Subject
	existing.UpdatedAt = time.Now()
	return cloneEvidence(existing), nil
}

func (f *fakeEvidenceRepo) GetByID(id string) (*entity.PaymentEvidence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			return cloneEvidence(row), nil
		}
	}
	return nil, nil
}

func (f *fakeEvidenceRepo) GetByIDForUpdate(id string) (*entity.PaymentEvidence, error) {
	return f.GetByID(id)
}

func (f *fakeEvidenceRepo) Update(ev *entity.PaymentEvidence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, row := range f.rows {
		if row.ID == ev.ID {
			f.rows[i] = cloneEvidence(ev)
			return nil
		}
	}
	return fmt.Errorf("evidencia %s no existe", ev.ID)
}

func (f *fakeEvidenceRepo) List(limit, offset int) ([]*entity.PaymentEvidence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.PaymentEvidence
	for _, row := range f.rows {
		out = append(out, cloneEvidence(row))
	}
	return out, nil
}

func (f *fakeEvidenceRepo) ListByStatus(status string, limit, offset int) ([]*entity.PaymentEvidence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.PaymentEvidence
	for _, row := range f.rows {
		if row.Status == status {
			out = append(out, cloneEvidence(row))
		}
	}
	return out, nil
}

func (f *fakeEvidenceRepo) ExistsVerifiedByOrigin(messageID, attachment, excludeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID != excludeID &&
			row.SourceMessageID == messageID &&
			row.AttachmentName == attachment &&
			row.Status == entity.EvidenceStatusVerified {
			return true, nil
		}
	}
	return false, nil
}

type fakeInvoiceRepo struct {
	mu     sync.Mutex
	rows   []*entity.Invoice
	getErr error // fallo inyectado en las lecturas por ID
}

func (f *fakeInvoiceRepo) seed(inv *entity.Invoice) *entity.Invoice {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	f.rows = append(f.rows, cloneInvoice(inv))
	return cloneInvoice(inv)
}

func (f *fakeInvoiceRepo) GetByID(id string) (*entity.Invoice, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			return cloneInvoice(row), nil
		}
	}
	return nil, nil
}

func (f *fakeInvoiceRepo) GetByNumber(number string) (*entity.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.Number == number {
			return cloneInvoice(row), nil
		}
	}
	return nil, nil
}

func (f *fakeInvoiceRepo) GetByIDForUpdate(id string) (*entity.Invoice, error) {
	return f.GetByID(id)
}

func (f *fakeInvoiceRepo) ListOpen() ([]*entity.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Invoice
	for _, row := range f.rows {
		switch row.Status {
		case entity.InvoiceStatusDraft, entity.InvoiceStatusSent, entity.InvoiceStatusPartiallyPaid:
			out = append(out, cloneInvoice(row))
		}
	}
	return out, nil
}

func (f *fakeInvoiceRepo) ListByStatus(status string, limit, offset int) ([]*entity.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Invoice
	for _, row := range f.rows {
		if row.Status == status {
			out = append(out, cloneInvoice(row))
		}
	}
	return out, nil
}

func (f *fakeInvoiceRepo) UpdateLedger(inv *entity.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == inv.ID {
			row.Collected = inv.Collected
			row.Outstanding = inv.Outstanding
			row.Status = inv.Status
			row.UpdatedAt = inv.UpdatedAt
			return nil
		}
	}
	return fmt.Errorf("factura %s no existe", inv.ID)
}

// fakeMatchRepo impone el índice único: a lo sumo un match vivo por evidencia.
type fakeMatchRepo struct {
	mu   sync.Mutex
	live map[string]*entity.PaymentMatch // por evidence_id
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{live: make(map[string]*entity.PaymentMatch)}
}

func (f *fakeMatchRepo) Create(match *entity.PaymentMatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.live[match.EvidenceID]; ok {
		return fmt.Errorf("%w: la evidencia ya tiene un match vivo", domain.ErrDuplicate)
	}
	if match.ID == "" {
		match.ID = uuid.New().String()
	}
	c := *match
	f.live[match.EvidenceID] = &c
	return nil
}

func (f *fakeMatchRepo) GetByEvidenceID(evidenceID string) (*entity.PaymentMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.live[evidenceID]
	if !ok {
		return nil, nil
	}
	c := *m
	return &c, nil
}

func (f *fakeMatchRepo) ListByInvoiceID(invoiceID string) ([]*entity.PaymentMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.PaymentMatch
	for _, m := range f.live {
		if m.InvoiceID == invoiceID {
			c := *m
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeMatchRepo) DeleteByEvidenceID(evidenceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, evidenceID)
	return nil
}

// fakeTxRunner ejecuta la función directamente sobre los fakes: los tests de
// casos de uso validan la lógica, no el aislamiento transaccional.
type fakeTxRunner struct {
	evidences *fakeEvidenceRepo
	invoices  *fakeInvoiceRepo
	matches   *fakeMatchRepo
}

func (f *fakeTxRunner) RunReconciliation(ctx context.Context, fn func(
	evidenceRepo repository.EvidenceRepository,
	invoiceRepo repository.InvoiceRepository,
	matchRepo repository.MatchRepository,
) error) error {
	return fn(f.evidences, f.invoices, f.matches)
}

// ──────────────────────────────────────────────────────────────────────────────
// Fakes de los puertos de infraestructura
// ──────────────────────────────────────────────────────────────────────────────

type fakeMail struct {
	ids     []string
	listErr error
	msgs    map[string]*reconciliation.MailMessage
	msgErr  map[string]error
	byID    map[string][]byte // messageID + "/" + attachmentID
	byName  map[string][]byte // messageID + "/" + filename
}

func newFakeMail() *fakeMail {
	return &fakeMail{
		msgs:   make(map[string]*reconciliation.MailMessage),
		msgErr: make(map[string]error),
		byID:   make(map[string][]byte),
		byName: make(map[string][]byte),
	}
}

func (f *fakeMail) addMessage(msg *reconciliation.MailMessage) {
	f.ids = append(f.ids, msg.ID)
	f.msgs[msg.ID] = msg
}

func (f *fakeMail) addAttachment(messageID string, att reconciliation.MailAttachment, data []byte) {
	msg := f.msgs[messageID]
	msg.Attachments = append(msg.Attachments, att)
	f.byID[messageID+"/"+att.ID] = data
	f.byName[messageID+"/"+att.Filename] = data
}

func (f *fakeMail) ListMessages(ctx context.Context, account, query string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.ids, nil
}

func (f *fakeMail) GetMessage(ctx context.Context, account, messageID string) (*reconciliation.MailMessage, error) {
	if err := f.msgErr[messageID]; err != nil {
		return nil, err
	}
	msg, ok := f.msgs[messageID]
	if !ok {
		return nil, fmt.Errorf("mensaje %s no existe", messageID)
	}
	return msg, nil
}

func (f *fakeMail) GetAttachment(ctx context.Context, account, messageID, attachmentID string) ([]byte, error) {
	data, ok := f.byID[messageID+"/"+attachmentID]
	if !ok {
		return nil, fmt.Errorf("adjunto %s no existe", attachmentID)
	}
	return data, nil
}

func (f *fakeMail) GetAttachmentByName(ctx context.Context, account, messageID, filename string) ([]byte, error) {
	data, ok := f.byName[messageID+"/"+filename]
	if !ok {
		return nil, fmt.Errorf("adjunto %s no existe", filename)
	}
	return data, nil
}

// fakePDF devuelve el texto registrado para los bytes exactos del documento.
type fakePDF struct {
	texts map[string]string
}

func newFakePDF() *fakePDF { return &fakePDF{texts: make(map[string]string)} }

func (f *fakePDF) ExtractText(data []byte) (string, error) {
	text, ok := f.texts[string(data)]
	if !ok {
		return "", errors.New("pdf sin capa de texto")
	}
	return text, nil
}

type fakeOCR struct {
	texts map[string]string
}

func newFakeOCR() *fakeOCR { return &fakeOCR{texts: make(map[string]string)} }

func (f *fakeOCR) ExtractText(ctx context.Context, image []byte) (string, error) {
	text, ok := f.texts[string(image)]
	if !ok {
		return "", errors.New("ocr sin resultado")
	}
	return text, nil
}

type fakeFiles struct {
	mu       sync.Mutex
	saved    map[string][]byte
	saveErr  error
	fetchErr error
}

func newFakeFiles() *fakeFiles { return &fakeFiles{saved: make(map[string][]byte)} }

func (f *fakeFiles) Save(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	path := "s3://comprobantes-test/" + key
	f.saved[path] = data
	return path, nil
}

func (f *fakeFiles) Fetch(ctx context.Context, path string) ([]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.saved[path]
	if !ok {
		return nil, fmt.Errorf("objeto %s no existe", path)
	}
	return data, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Fixture y builders
// ──────────────────────────────────────────────────────────────────────────────

// fixture agrupa fakes y casos de uso listos para un test.
type fixture struct {
	evidences *fakeEvidenceRepo
	invoices  *fakeInvoiceRepo
	matches   *fakeMatchRepo
	mail      *fakeMail
	pdf       *fakePDF
	ocr       *fakeOCR
	files     *fakeFiles

	ingestUC *reconciliation.IngestUseCase
	matchUC  *reconciliation.MatchUseCase
	ledgerUC *reconciliation.LedgerUseCase
}

func newFixture(cfg reconciliation.IngestConfig) *fixture {
	f := &fixture{
		evidences: &fakeEvidenceRepo{},
		invoices:  &fakeInvoiceRepo{},
		matches:   newFakeMatchRepo(),
		mail:      newFakeMail(),
		pdf:       newFakePDF(),
		ocr:       newFakeOCR(),
		files:     newFakeFiles(),
	}
	runner := &fakeTxRunner{evidences: f.evidences, invoices: f.invoices, matches: f.matches}
	log := logger.Nop()
	extractor := reconciliation.NewDocumentExtractor(f.pdf, f.ocr, log)

	f.ingestUC = reconciliation.NewIngestUseCase(f.evidences, f.invoices, f.mail, extractor, f.files, cfg, log)
	f.matchUC = reconciliation.NewMatchUseCase(f.evidences, f.invoices, runner, log)
	f.ledgerUC = reconciliation.NewLedgerUseCase(runner, f.evidences, f.mail, f.files, extractor, log)
	return f
}

func openInvoice(number string, total int64) *entity.Invoice {
	t := decimal.NewFromInt(total)
	return &entity.Invoice{
		ID:          uuid.New().String(),
		Number:      number,
		Total:       t,
		Collected:   decimal.Zero,
		Outstanding: t,
		Currency:    "COP",
		Status:      entity.InvoiceStatusSent,
		IssuedAt:    time.Now().Add(-72 * time.Hour),
		DueAt:       time.Now().Add(30 * 24 * time.Hour),
	}
}

func matchedEvidence(invoiceID string, amount int64) *entity.PaymentEvidence {
	return &entity.PaymentEvidence{
		ID:              uuid.New().String(),
		SourceKind:      entity.EvidenceSourceEmailReply,
		SourceMessageID: "msg-" + uuid.New().String(),
		AttachmentName:  "comprobante.pdf",
		Mailbox:         "recaudo@acme.co",
		Amount:          decimal.NullDecimal{Decimal: decimal.NewFromInt(amount), Valid: true},
		Confidence:      0.80,
		Status:          entity.EvidenceStatusMatched,
		InvoiceID:       invoiceID,
		MediaType:       "application/pdf",
		ReceivedAt:      time.Now(),
	}
}
