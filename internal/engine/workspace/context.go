package workspace

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	domainerrors "pyanalyzer/internal/core/errors"
	"pyanalyzer/internal/engine/pathindex"
)

type EventKind uint8

const (
	// DocumentsChanged fires when documents are added to a context.
	DocumentsChanged EventKind = iota + 1
	// DocumentContentChanged fires when a document is replaced. Document
	// holds the replacement.
	DocumentContentChanged
)

func (k EventKind) String() string {
	switch k {
	case DocumentsChanged:
		return "documents_changed"
	case DocumentContentChanged:
		return "document_content_changed"
	}
	return "unknown"
}

type Event struct {
	Kind     EventKind
	Document SourceDocument
}

const subscriberBuffer = 64

type subscriber struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *subscriber) stop() { s.once.Do(func() { close(s.done) }) }

// FileContext is a rooted set of documents analyzed as one unit. Closing it
// closes every subscriber channel, which is how consumers learn it is gone.
type FileContext struct {
	id          string
	root        string
	packageName string

	mu   sync.RWMutex
	docs *pathindex.Index[SourceDocument]

	subMu   sync.Mutex
	subs    map[*subscriber]struct{}
	closing chan struct{}
	closed  sync.Once
}

func NewFileContext(root, packageName string) *FileContext {
	return &FileContext{
		id:          uuid.New().String(),
		root:        root,
		packageName: packageName,
		docs:        pathindex.New[SourceDocument](root),
		subs:        make(map[*subscriber]struct{}),
		closing:     make(chan struct{}),
	}
}

func (c *FileContext) ID() string          { return c.id }
func (c *FileContext) Root() string        { return c.root }
func (c *FileContext) PackageName() string { return c.packageName }

func (c *FileContext) isClosed() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

// AddDocuments adds the documents not already present and reports whether
// any were. Documents outside the root are skipped.
func (c *FileContext) AddDocuments(docs ...SourceDocument) bool {
	if c.isClosed() {
		return false
	}
	added := false
	c.mu.Lock()
	for _, doc := range docs {
		if doc == nil || c.docs.Contains(doc.Moniker()) {
			continue
		}
		ok, err := c.docs.Add(doc.Moniker(), doc)
		if err != nil {
			continue
		}
		added = added || ok
	}
	c.mu.Unlock()

	if added {
		c.publish(Event{Kind: DocumentsChanged})
	}
	return added
}

// ReplaceDocument swaps in a new value for a document with the same
// moniker, adding it if it was unknown.
func (c *FileContext) ReplaceDocument(doc SourceDocument) error {
	if c.isClosed() {
		return domainerrors.Disposed("file context " + c.root)
	}
	c.mu.Lock()
	created, err := c.docs.Add(doc.Moniker(), doc)
	c.mu.Unlock()
	if err != nil {
		return domainerrors.AddContext(err, domainerrors.CtxContext, c.root)
	}

	if created {
		c.publish(Event{Kind: DocumentsChanged})
	} else {
		c.publish(Event{Kind: DocumentContentChanged, Document: doc})
	}
	return nil
}

// Documents returns every document ordered by moniker.
func (c *FileContext) Documents() []SourceDocument {
	c.mu.RLock()
	docs := c.docs.Values()
	c.mu.RUnlock()
	sort.Slice(docs, func(i, j int) bool { return docs[i].Moniker() < docs[j].Moniker() })
	return docs
}

func (c *FileContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.docs.Len()
}

func (c *FileContext) Contains(path string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.docs.Contains(path)
}

func (c *FileContext) Document(moniker string) (SourceDocument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.docs.TryGet(moniker)
}

// FindByParts looks up root/parts... inside the context.
func (c *FileContext) FindByParts(root string, parts []string) (SourceDocument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.docs.TryFindByParts(root, parts)
}

// Children lists the names directly under root/parts.
func (c *FileContext) Children(root string, parts []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.docs.Children(root, parts)
}

// Subscribe returns a channel of events and a func that unsubscribes. The
// channel is closed on unsubscribe or when the context is closed.
func (c *FileContext) Subscribe() (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, subscriberBuffer), done: make(chan struct{})}

	c.subMu.Lock()
	if c.isClosed() {
		c.subMu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	c.subs[s] = struct{}{}
	c.subMu.Unlock()

	return s.ch, func() {
		s.stop()
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subs[s]; ok {
			delete(c.subs, s)
			close(s.ch)
		}
	}
}

func (c *FileContext) publish(ev Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for s := range c.subs {
		select {
		case s.ch <- ev:
		case <-s.done:
		case <-c.closing:
			return
		}
	}
}

// Close disposes the context. It is safe to call more than once.
func (c *FileContext) Close() {
	c.closed.Do(func() {
		close(c.closing)
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for s := range c.subs {
			s.stop()
			close(s.ch)
		}
		c.subs = make(map[*subscriber]struct{})
	})
}
