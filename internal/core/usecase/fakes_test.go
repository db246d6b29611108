package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
	"github.com/dkruglov/exam-ingest/internal/core/ports"
)

func newPDFReader() io.Reader {
	return bytes.NewReader([]byte("%PDF-1.7 test fixture"))
}

type memDocs struct {
	mu   sync.Mutex
	docs map[string]*domain.SourceDocument
}

func newMemDocs(docs ...*domain.SourceDocument) *memDocs {
	m := &memDocs{docs: make(map[string]*domain.SourceDocument)}
	for _, doc := range docs {
		copied := *doc
		m.docs[doc.ID] = &copied
	}
	return m
}

func (m *memDocs) Create(_ context.Context, doc *domain.SourceDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *doc
	m.docs[doc.ID] = &copied
	return nil
}

func (m *memDocs) GetByID(_ context.Context, id string) (*domain.SourceDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	copied := *doc
	return &copied, nil
}

func (m *memDocs) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update status", fmt.Errorf("id=%s", id))
	}
	doc.Status = status
	doc.Error = errMessage
	return nil
}

func (m *memDocs) SetPageCount(_ context.Context, id string, pageCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "set page count", fmt.Errorf("id=%s", id))
	}
	doc.PageCount = pageCount
	return nil
}

func (m *memDocs) status(id string) domain.DocumentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id].Status
}

type memStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte

	putErrKeys map[string]int // key -> remaining failures
}

func newMemStorage() *memStorage {
	return &memStorage{
		blobs:      make(map[string][]byte),
		putErrKeys: make(map[string]int),
	}
}

func (m *memStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = raw
	return nil
}

func (m *memStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (m *memStorage) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if remaining := m.putErrKeys[key]; remaining > 0 {
		m.putErrKeys[key] = remaining - 1
		return "", fmt.Errorf("transient store error for %s", key)
	}
	if _, ok := m.blobs[key]; ok {
		return key, nil
	}
	m.blobs[key] = append([]byte(nil), data...)
	return key, nil
}

func (m *memStorage) Get(_ context.Context, locator string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.blobs[locator]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", locator)
	}
	return append([]byte(nil), raw...), nil
}

func (m *memStorage) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[key]
	return ok
}

type fakeRaster struct {
	mu          sync.Mutex
	pages       int
	failPages   map[int]bool
	openErr     error
	openCalls   int
	renderCalls int
}

func (f *fakeRaster) Open(_ context.Context, _ []byte) (ports.RasterDocument, error) {
	f.mu.Lock()
	f.openCalls++
	f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeRasterDoc{raster: f}, nil
}

type fakeRasterDoc struct {
	raster *fakeRaster
}

func (d *fakeRasterDoc) PageCount() int { return d.raster.pages }

func (d *fakeRasterDoc) RenderPage(_ context.Context, pageNumber int) ([]byte, error) {
	d.raster.mu.Lock()
	d.raster.renderCalls++
	d.raster.mu.Unlock()
	if d.raster.failPages[pageNumber] {
		return nil, domain.WrapError(domain.ErrPageRenderFailed, "render page", fmt.Errorf("page %d corrupt", pageNumber))
	}
	return []byte(fmt.Sprintf("png-page-%d", pageNumber)), nil
}

func (d *fakeRasterDoc) Close() error { return nil }

type scriptedClassifier struct {
	mu       sync.Mutex
	byPage   map[int]domain.PageClassification
	errPages map[int]bool
	onPage   func(page int)
	calls    int
}

func (c *scriptedClassifier) ClassifyPage(_ context.Context, pageNumber int, _ []byte) (domain.PageClassification, error) {
	c.mu.Lock()
	c.calls++
	hook := c.onPage
	c.mu.Unlock()
	if hook != nil {
		hook(pageNumber)
	}
	if c.errPages[pageNumber] {
		return domain.PageClassification{}, fmt.Errorf("classifier unavailable for page %d", pageNumber)
	}
	cls, ok := c.byPage[pageNumber]
	if !ok {
		return domain.DegradedClassification(pageNumber), nil
	}
	cls.PageNumber = pageNumber
	return cls, nil
}

type scriptedExtractor struct {
	mu        sync.Mutex
	err       error
	failCalls int // with err set: fail this many calls then succeed; -1 fails every call
	respond   func(q int, item domain.ExtractionItem) domain.ExtractedQuestion
	calls     [][]int
	itemsSeen []domain.ExtractionItem
}

func (e *scriptedExtractor) ExtractBatch(_ context.Context, items []domain.ExtractionItem) ([]domain.ExtractedQuestion, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	numbers := make([]int, 0, len(items))
	for _, item := range items {
		numbers = append(numbers, item.Group.QuestionNumber)
	}
	e.calls = append(e.calls, numbers)
	e.itemsSeen = append(e.itemsSeen, items...)

	if e.err != nil && e.failCalls != 0 {
		if e.failCalls > 0 {
			e.failCalls--
		}
		return nil, e.err
	}

	out := make([]domain.ExtractedQuestion, 0, len(items))
	for _, item := range items {
		q := item.Group.QuestionNumber
		if e.respond != nil {
			out = append(out, e.respond(q, item))
			continue
		}
		out = append(out, domain.ExtractedQuestion{
			QuestionNumber: q,
			Text:           fmt.Sprintf("Question %d text", q),
			Options: []domain.Option{
				{Letter: "A", Text: "right", IsCorrect: true},
				{Letter: "B", Text: "wrong"},
			},
		})
	}
	return out, nil
}

func (e *scriptedExtractor) callSizes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	sizes := make([]int, len(e.calls))
	for i, call := range e.calls {
		sizes[i] = len(call)
	}
	return sizes
}

// memCheckpoints clones through JSON on both paths so the store holds
// no live pointers, same as a real durable backend.
type memCheckpoints struct {
	mu    sync.Mutex
	cps   map[string][]byte
	saves int
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{cps: make(map[string][]byte)}
}

func (m *memCheckpoints) Load(_ context.Context, documentID string) (*domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.cps[documentID]
	if !ok {
		return nil, domain.WrapError(domain.ErrCheckpointNotFound, "load checkpoint", fmt.Errorf("id=%s", documentID))
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (m *memCheckpoints) Save(_ context.Context, cp *domain.Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cps[cp.DocumentID] = raw
	m.saves++
	return nil
}

func (m *memCheckpoints) Delete(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cps, documentID)
	return nil
}

// mutate applies an operator-style edit directly to the stored copy.
func (m *memCheckpoints) mutate(documentID string, fn func(*domain.Checkpoint)) error {
	cp, err := m.Load(context.Background(), documentID)
	if err != nil {
		return err
	}
	fn(cp)
	return m.Save(context.Background(), cp)
}

type memQuestions struct {
	mu      sync.Mutex
	byFP    map[string]*domain.ExtractedQuestion
	byDoc   map[string][]*domain.ExtractedQuestion
	inserts int
}

func newMemQuestions() *memQuestions {
	return &memQuestions{
		byFP:  make(map[string]*domain.ExtractedQuestion),
		byDoc: make(map[string][]*domain.ExtractedQuestion),
	}
}

func (m *memQuestions) InsertIfAbsent(_ context.Context, documentID string, question *domain.ExtractedQuestion) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byFP[question.ContentFingerprint]; ok {
		return false, nil
	}
	copied := *question
	m.byFP[question.ContentFingerprint] = &copied
	m.byDoc[documentID] = append(m.byDoc[documentID], &copied)
	m.inserts++
	return true, nil
}

func (m *memQuestions) ListByDocument(_ context.Context, documentID string) ([]*domain.ExtractedQuestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.ExtractedQuestion(nil), m.byDoc[documentID]...), nil
}

func (m *memQuestions) ListFingerprints(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.byFP))
	for fp := range m.byFP {
		out = append(out, fp)
	}
	return out, nil
}

func (m *memQuestions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byFP)
}

func (m *memQuestions) byNumber(number int) *domain.ExtractedQuestion {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.byFP {
		if q.QuestionNumber == number {
			return q
		}
	}
	return nil
}

type memQueue struct {
	mu        sync.Mutex
	published []string
}

func (m *memQueue) PublishDocumentReceived(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, documentID)
	return nil
}

func (m *memQueue) SubscribeDocumentReceived(context.Context, func(context.Context, string) error) error {
	return nil
}
