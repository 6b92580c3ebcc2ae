package engine

import (
	"encoding/json"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	index "github.com/blevesearch/bleve_index_api"

	"github.com/Aman-CERP/shardex/internal/errors"
)

// Analyzers accepted in WriterConfig.Analyzer.
var Analyzers = []string{standard.Name, keyword.Name, simple.Name}

// storedDoc is the JSON kept in SourceField.
type storedDoc struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields,omitempty"`
}

// newIndexMapping maps KeyField, the routing and soft-delete fields, and any
// configured keyword fields with the keyword analyzer so term lookups are
// exact. Other fields are indexed dynamically with the configured analyzer.
// Only SourceField is stored.
func newIndexMapping(cfg WriterConfig) (*mapping.IndexMappingImpl, error) {
	analyzer := cfg.Analyzer
	if analyzer == "" {
		analyzer = standard.Name
	}
	known := false
	for _, a := range Analyzers {
		known = known || a == analyzer
	}
	if !known {
		return nil, errors.ConfigError(fmt.Sprintf("unknown analyzer %q", analyzer), nil)
	}

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = analyzer
	indexMapping.StoreDynamic = false
	indexMapping.DocValuesDynamic = false

	docMapping := bleve.NewDocumentMapping()

	source := bleve.NewTextFieldMapping()
	source.Index = false
	source.Store = true
	source.IncludeInAll = false
	source.DocValues = false
	docMapping.AddFieldMappingsAt(SourceField, source)

	for _, name := range keywordFields(cfg) {
		fm := bleve.NewKeywordFieldMapping()
		fm.Store = false
		fm.IncludeInAll = false
		fm.DocValues = false
		docMapping.AddFieldMappingsAt(name, fm)
	}

	indexMapping.DefaultMapping = docMapping
	return indexMapping, nil
}

func keywordFields(cfg WriterConfig) []string {
	fields := []string{KeyField}
	seen := map[string]bool{KeyField: true}
	for _, f := range append([]string{cfg.RoutingField, cfg.SoftDeletesField}, cfg.KeywordFields...) {
		if f != "" && !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	return fields
}

// encodeDoc builds the body handed to bleve and the stored source bytes.
func encodeDoc(id string, fields map[string]any) (map[string]any, []byte, error) {
	src, err := json.Marshal(storedDoc{ID: id, Fields: fields})
	if err != nil {
		return nil, nil, errors.ValidationError("document is not JSON encodable", err).WithDetail("id", id)
	}
	return bodyFor(id, fields, src, nil), src, nil
}

// bodyFor builds the document bleve indexes. Values of keyword fields are
// indexed as text; bleve skips anything but strings under a keyword mapping.
func bodyFor(id string, fields map[string]any, src []byte, keywords map[string]bool) map[string]any {
	body := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		if keywords[k] {
			v = keywordValue(v)
		}
		body[k] = v
	}
	body[KeyField] = id
	body[SourceField] = string(src)
	return body
}

func keywordValue(v any) any {
	switch v := v.(type) {
	case nil, string:
		return v
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = keywordValue(e)
		}
		return out
	case map[string]any:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// decodeSource parses stored source bytes.
func decodeSource(src []byte) (storedDoc, error) {
	var sd storedDoc
	if err := json.Unmarshal(src, &sd); err != nil {
		return sd, errors.New(errors.ErrCodeFileCorrupt, "stored document is corrupt", err)
	}
	return sd, nil
}

// sourceOf extracts SourceField from a bleve document. It returns nil when the
// field is missing.
func sourceOf(doc index.Document) []byte {
	var src []byte
	doc.VisitFields(func(f index.Field) {
		if f.Name() == SourceField {
			src = append([]byte(nil), f.Value()...)
		}
	})
	return src
}

func validateFields(fields map[string]any) error {
	for name := range fields {
		if name == KeyField || name == SourceField {
			return errors.ValidationError("reserved field name: "+name, nil).WithDetail("field", name)
		}
	}
	return nil
}
