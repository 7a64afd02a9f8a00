package model

import "time"

// DateRange bounds a crawl request. Dates are ISO-8601 (YYYY-MM-DD).
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// GazetteCandidate is one gazette PDF discovered by a crawler. The
// pipeline deduplicates candidates on PDFURL before any OCR happens.
type GazetteCandidate struct {
	TerritoryID     string    `json:"territoryId"`
	PublicationDate string    `json:"publicationDate"`
	EditionNumber   string    `json:"editionNumber,omitempty"`
	PDFURL          string    `json:"pdfUrl"`
	IsExtraEdition  bool      `json:"isExtraEdition"`
	Power           Power     `json:"power"`
	ScrapedAt       time.Time `json:"scrapedAt"`
	SourceText      string    `json:"sourceText,omitempty"`
}

// Finding is a structured datum extracted by one analyzer.
type Finding struct {
	Type       string         `json:"type"`
	Confidence float64        `json:"confidence"`
	Data       map[string]any `json:"data"`
	Context    string         `json:"context,omitempty"`
}

// ConcursoData is the structured payload of a "concurso" finding: a
// public-service competition announced in a gazette.
type ConcursoData struct {
	DocumentType     string            `json:"documentType,omitempty"`
	Orgao            string            `json:"orgao,omitempty"`
	EditalNumero     string            `json:"editalNumero,omitempty"`
	TotalVagas       int               `json:"totalVagas"`
	Cargos           []string          `json:"cargos,omitempty"`
	Datas            map[string]string `json:"datas,omitempty"`
	Taxas            []string          `json:"taxas,omitempty"`
	Banca            string            `json:"banca,omitempty"`
	ExtractionMethod string            `json:"extractionMethod,omitempty"`
}

// OcrOutcome is what the OCR provider returns for one PDF. Documented
// failures are reported in Status/Error, never as a Go error.
type OcrOutcome struct {
	Status           OcrJobStatus `json:"status"`
	ExtractedText    string       `json:"extractedText,omitempty"`
	PagesProcessed   int          `json:"pagesProcessed"`
	ProcessingTimeMs int64        `json:"processingTimeMs"`
	PDFObjectKey     string       `json:"pdfObjectKey,omitempty"`
	Error            *OcrError    `json:"error,omitempty"`
}

// OcrError carries a machine-readable code plus human context.
type OcrError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
