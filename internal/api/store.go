package api

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultStoreSize bounds the number of finished generations kept for
// GET /v1/generations/:id.
const DefaultStoreSize = 256

// GenerationStore keeps the most recent generation responses by id.
type GenerationStore struct {
	cache *lru.Cache[string, GenerateResponse]
}

func NewGenerationStore(size int) *GenerationStore {
	if size <= 0 {
		size = DefaultStoreSize
	}
	cache, err := lru.New[string, GenerateResponse](size)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &GenerationStore{cache: cache}
}

func (s *GenerationStore) Save(resp GenerateResponse) {
	s.cache.Add(resp.ID, resp)
}

func (s *GenerationStore) Get(id string) (GenerateResponse, bool) {
	return s.cache.Get(id)
}

func (s *GenerationStore) Delete(id string) bool {
	return s.cache.Remove(id)
}

func (s *GenerationStore) Len() int { return s.cache.Len() }
