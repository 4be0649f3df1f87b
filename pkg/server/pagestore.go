package server

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vtree/vsqldb/pkg/page"
)

// PageStore is the server-side page file: the authoritative bytes a
// NodeStore's leaf digests authenticate.
type PageStore interface {
	ReadPage(id page.ID) (*page.Page, error)
	WritePage(id page.ID, p *page.Page) error
}

// MemPageStore is an in-memory PageStore, used in tests.
type MemPageStore struct {
	mu    sync.Mutex
	pages map[page.ID]*page.Page
}

func NewMemPageStore() *MemPageStore {
	return &MemPageStore{pages: make(map[page.ID]*page.Page)}
}

func (s *MemPageStore) ReadPage(id page.ID) (*page.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pages[id]; ok {
		return p, nil
	}
	return new(page.Page), nil
}

func (s *MemPageStore) WritePage(id page.ID, p *page.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.pages[id] = &cp
	return nil
}

// FilePageStore is a PageStore backed by the flat page file on disk:
// page id i lives at byte offset i*page.Size.
type FilePageStore struct {
	mu   sync.Mutex
	file *os.File
}

// OpenFilePageStore opens (creating if absent) the page file at path.
func OpenFilePageStore(path string) (*FilePageStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("server: opening page file: %w", err)
	}
	return &FilePageStore{file: f}, nil
}

// ReadPage reads page id's bytes, treating a short or absent read (a
// page file that hasn't grown that far yet) as an all-zero page.
func (s *FilePageStore) ReadPage(id page.ID) (*page.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var buf [page.Size]byte
	off := int64(id) * page.Size
	n, err := s.file.ReadAt(buf[:], off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("server: reading page %d: %w", id, err)
	}
	_ = n
	return page.FromBytes(buf[:])
}

func (s *FilePageStore) WritePage(id page.ID, p *page.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	off := int64(id) * page.Size
	if _, err := s.file.WriteAt(p[:], off); err != nil {
		return fmt.Errorf("server: writing page %d: %w", id, err)
	}
	return nil
}

func (s *FilePageStore) Close() error { return s.file.Close() }
