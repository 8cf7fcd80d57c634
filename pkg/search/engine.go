package search

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	q "github.com/blevesearch/bleve/v2/search/query"
)

var ErrClosed = errors.New("search index closed")

// Index 录音名全文索引。写入来自录音表的实时视图，查询来自 HTTP。
type Index struct {
	cfg    Config
	index  bleve.Index
	mu     sync.RWMutex
	closed bool
	ids    map[string]struct{}
}

func New(cfg Config) (*Index, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	m := BuildIndexMapping()

	var (
		idx bleve.Index
		err error
	)
	switch {
	case cfg.IndexPath == "":
		idx, err = bleve.NewMemOnly(m)
	default:
		if _, statErr := os.Stat(cfg.IndexPath); statErr == nil {
			idx, err = bleve.Open(cfg.IndexPath)
		} else if os.IsNotExist(statErr) {
			idx, err = bleve.New(cfg.IndexPath, m)
		} else {
			err = statErr
		}
	}
	if err != nil {
		return nil, err
	}
	return &Index{cfg: cfg, index: idx, ids: make(map[string]struct{})}, nil
}

func (e *Index) withDeadline(ctx context.Context, fn func() error) error {
	if e.cfg.QueryTimeout <= 0 {
		return fn()
	}
	c, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()
	ch := make(chan error, 1)
	go func() { ch <- fn() }()
	select {
	case <-c.Done():
		return c.Err()
	case err := <-ch:
		return err
	}
}

func fields(d Doc) map[string]any {
	return map[string]any{
		"type":       docType,
		"name":       d.Name,
		"name_lower": strings.ToLower(d.Name),
		"length_ms":  float64(d.Length.Milliseconds()),
		"added":      d.Added,
	}
}

// Replace 用完整列表替换索引内容：新增或更新列表中的文档，删除不在列表中的文档
func (e *Index) Replace(ctx context.Context, docs []Doc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	keep := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		keep[d.ID] = struct{}{}
	}
	return e.withDeadline(ctx, func() error {
		b := e.index.NewBatch()
		flush := func() error {
			if b.Size() == 0 {
				return nil
			}
			if err := e.index.Batch(b); err != nil {
				return err
			}
			b.Reset()
			return nil
		}
		for id := range e.ids {
			if _, ok := keep[id]; !ok {
				b.Delete(id)
			}
		}
		for _, d := range docs {
			if err := b.Index(d.ID, fields(d)); err != nil {
				return err
			}
			if b.Size() >= e.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := flush(); err != nil {
			return err
		}
		e.ids = keep
		return nil
	})
}

// Search 名称匹配：分词命中、整名前缀与一次编辑距离的模糊匹配取并集
func (e *Index) Search(ctx context.Context, text string, limit int) (Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return Result{}, ErrClosed
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Hits: []Hit{}}, nil
	}
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}

	match := bleve.NewMatchQuery(text)
	match.SetField("name")
	match.SetBoost(2)
	prefix := bleve.NewPrefixQuery(strings.ToLower(text))
	prefix.SetField("name_lower")
	fuzzy := bleve.NewFuzzyQuery(strings.ToLower(text))
	fuzzy.SetField("name")
	fuzzy.SetFuzziness(1)
	sr := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery([]q.Query{match, prefix, fuzzy}...), limit, 0, false)
	sr.Fields = []string{"name"}

	var res *bleve.SearchResult
	err := e.withDeadline(ctx, func() error {
		r, err := e.index.Search(sr)
		res = r
		return err
	})
	if err != nil {
		return Result{}, err
	}

	out := Result{Total: res.Total, Took: res.Took, Hits: make([]Hit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		name, _ := h.Fields["name"].(string)
		out.Hits = append(out.Hits, Hit{ID: h.ID, Name: name, Score: h.Score})
	}
	return out, nil
}

// Count 已索引文档数
func (e *Index) Count() (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return 0, ErrClosed
	}
	return e.index.DocCount()
}

func (e *Index) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.index.Close()
}
