package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/meishi/internal/models"
)

// Indexed card fields. Email and website are indexed so a lookup by domain finds the card.
const (
	fieldName      = "name"
	fieldJobTitle  = "job_title"
	fieldCompany   = "company"
	fieldEmail     = "email"
	fieldLocation  = "location"
	fieldWebsite   = "website"
	fieldIndustry  = "industry"
	fieldSeniority = "seniority"
)

var cardFields = []string{
	fieldName, fieldJobTitle, fieldCompany, fieldEmail,
	fieldLocation, fieldWebsite, fieldIndustry, fieldSeniority,
}

// cardDocument is the Bleve document for one card.
type cardDocument struct {
	Name      string `json:"name"`
	JobTitle  string `json:"job_title"`
	Company   string `json:"company"`
	Email     string `json:"email"`
	Location  string `json:"location"`
	Website   string `json:"website"`
	Industry  string `json:"industry"`
	Seniority string `json:"seniority"`
}

func newCardDocument(meta models.Metadata) *cardDocument {
	return &cardDocument{
		Name:      meta.Name,
		JobTitle:  meta.JobTitle,
		Company:   meta.Company,
		Email:     meta.Email,
		Location:  meta.Location,
		Website:   meta.Website,
		Industry:  meta.Industry,
		Seniority: meta.Seniority,
	}
}

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func cardMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming): names must match as written.
	textFieldMapping.Analyzer = standard.Name
	for _, f := range cardFields {
		docMapping.AddFieldMappingsAt(f, textFieldMapping)
	}
	im.AddDocumentMapping("card", docMapping)
	im.DefaultType = "card"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates an
// in-memory index. If you change the mapping, remove the index directory and run reindex.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(cardMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, cardMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index indexes a card's metadata under its identity, replacing any previous document.
func (b *BleveIndex) Index(ctx context.Context, identity string, meta models.Metadata) error {
	return b.index.Index(identity, newCardDocument(meta))
}

// Search runs a match query over all card fields and returns up to limit cards.
// With opts.NameBoost > 1 the query is split per field and name matches are boosted.
// With opts.FuzzyEnabled each query term tolerates opts.Fuzziness edits.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	nameBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 1
	if opts != nil {
		if opts.NameBoost > 0 {
			nameBoost = opts.NameBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	var q blevequery.Query
	if nameBoost <= 1.0 {
		q = b.fieldQuery(query, "", fuzzyEnabled, fuzziness)
	} else {
		perField := make([]blevequery.Query, 0, len(cardFields))
		for _, f := range cardFields {
			fq := b.fieldQuery(query, f, fuzzyEnabled, fuzziness)
			if f == fieldName {
				if bq, ok := fq.(blevequery.BoostableQuery); ok {
					bq.SetBoost(nameBoost)
				}
			}
			perField = append(perField, fq)
		}
		q = bleve.NewDisjunctionQuery(perField...)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{Identity: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// fieldQuery builds a match or fuzzy query restricted to field; an empty field searches all fields.
func (b *BleveIndex) fieldQuery(query, field string, fuzzy bool, fuzziness int) blevequery.Query {
	terms := tokenizeQuery(query)
	if !fuzzy || len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}

	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	// any term may match, like MatchQuery
	return bleve.NewDisjunctionQuery(queries...)
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// Delete removes a card from the index.
func (b *BleveIndex) Delete(ctx context.Context, identity string) error {
	return b.index.Delete(identity)
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of cards in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Terms returns every indexed term across card fields with its largest per-field
// document frequency.
func (b *BleveIndex) Terms() (map[string]int, error) {
	terms := make(map[string]int)
	for _, f := range cardFields {
		dict, err := b.index.FieldDict(f)
		if err != nil {
			return nil, fmt.Errorf("read %s terms: %w", f, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			if n := int(entry.Count); n > terms[entry.Term] {
				terms[entry.Term] = n
			}
		}
		_ = dict.Close()
	}
	return terms, nil
}
