package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/vui-edu/records/internal/domain/importer/normalizer"
)

// courseDocument is the searchable projection of a course. FoldedName carries
// the diacritic-stripped name so "lap trinh" finds "Lập trình".
type courseDocument struct {
	Code           string  `json:"code"`
	Name           string  `json:"name"`
	FoldedName     string  `json:"folded_name"`
	KnowledgeBlock string  `json:"knowledge_block"`
	Credits        float64 `json:"credits"`
}

// SearchHit is one course match with its relevance score.
type SearchHit struct {
	Code  string
	Name  string
	Score float64
}

// SearchIndex provides full-text course lookup with typo tolerance.
type SearchIndex struct {
	index   bleve.Index
	indexMu sync.RWMutex
	path    string
}

// NewSearchIndex creates an index at path, or an in-memory one when path is
// empty.
func NewSearchIndex(path string) (*SearchIndex, error) {
	si := &SearchIndex{path: path}

	var index bleve.Index
	var err error
	indexMapping := buildIndexMapping()

	if path == "" {
		index, err = bleve.NewMemOnly(indexMapping)
	} else if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		if mkdirErr := os.MkdirAll(filepath.Dir(path), 0o755); mkdirErr != nil {
			return nil, fmt.Errorf("creating index directory: %w", mkdirErr)
		}
		index, err = bleve.New(path, indexMapping)
	} else {
		index, err = bleve.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening course index: %w", err)
	}

	si.index = index
	return si, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = simple.Name

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("code", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("name", textFieldMapping)
	docMapping.AddFieldMappingsAt("folded_name", textFieldMapping)
	docMapping.AddFieldMappingsAt("knowledge_block", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("credits", bleve.NewNumericFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = simple.Name
	return indexMapping
}

// IndexCourses (re)indexes the whole catalog in one batch.
func (si *SearchIndex) IndexCourses(courses []Course) error {
	si.indexMu.Lock()
	defer si.indexMu.Unlock()

	batch := si.index.NewBatch()
	for _, c := range courses {
		doc := courseDocument{
			Code:           c.Code,
			Name:           c.Name,
			FoldedName:     normalizer.Fold(c.Name),
			KnowledgeBlock: c.KnowledgeBlock,
			Credits:        float64(c.Credits),
		}
		if err := batch.Index(c.Code, doc); err != nil {
			return fmt.Errorf("indexing course %s: %w", c.Code, err)
		}
	}
	if err := si.index.Batch(batch); err != nil {
		return fmt.Errorf("executing course index batch: %w", err)
	}
	return nil
}

// Search matches query against course names, accent-blind, with one edit of
// typo tolerance.
func (si *SearchIndex) Search(query string, limit int) ([]SearchHit, error) {
	si.indexMu.RLock()
	defer si.indexMu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	matchQuery := bleve.NewMatchQuery(normalizer.Fold(query))
	matchQuery.SetFuzziness(1)
	matchQuery.SetField("folded_name")

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = limit
	searchRequest.Fields = []string{"code", "name"}

	searchResults, err := si.index.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("course search failed: %w", err)
	}

	hits := make([]SearchHit, 0, len(searchResults.Hits))
	for _, hit := range searchResults.Hits {
		h := SearchHit{Score: hit.Score}
		if code, ok := hit.Fields["code"].(string); ok {
			h.Code = code
		}
		if name, ok := hit.Fields["name"].(string); ok {
			h.Name = name
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// Close releases the underlying index files.
func (si *SearchIndex) Close() error {
	si.indexMu.Lock()
	defer si.indexMu.Unlock()
	return si.index.Close()
}
