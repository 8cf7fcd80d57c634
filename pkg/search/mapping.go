package search

import (
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

const docType = "recording"

// BuildIndexMapping 录音名按标准分词建索引，另存一份小写整词用于前缀匹配
func BuildIndexMapping() *mapping.IndexMappingImpl {
	idx := mapping.NewIndexMapping()
	idx.DefaultAnalyzer = standard.Name
	idx.TypeField = "type"

	text := mapping.NewTextFieldMapping()
	text.Store = true
	text.Index = true
	text.Analyzer = standard.Name
	text.IncludeTermVectors = true

	kw := mapping.NewTextFieldMapping()
	kw.Store = false
	kw.Index = true
	kw.Analyzer = keyword.Name

	num := mapping.NewNumericFieldMapping()
	num.Store = true
	num.Index = true
	dt := mapping.NewDateTimeFieldMapping()
	dt.Store = true
	dt.Index = true

	rec := mapping.NewDocumentMapping()
	rec.Dynamic = false
	rec.AddFieldMappingsAt("name", text)
	rec.AddFieldMappingsAt("name_lower", kw)
	rec.AddFieldMappingsAt("length_ms", num)
	rec.AddFieldMappingsAt("added", dt)
	idx.AddDocumentMapping(docType, rec)

	def := mapping.NewDocumentMapping()
	def.Dynamic = false
	idx.DefaultMapping = def
	return idx
}
